package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/metrics"
	"github.com/ironsheep/creek-ocr/internal/ocr"
	"github.com/ironsheep/creek-ocr/internal/pipeline"
	"github.com/ironsheep/creek-ocr/internal/queue"
	"github.com/ironsheep/creek-ocr/internal/service"
	"github.com/ironsheep/creek-ocr/internal/source"
	"github.com/ironsheep/creek-ocr/internal/storage"
	"github.com/ironsheep/creek-ocr/internal/storage/localfs"
	"github.com/ironsheep/creek-ocr/internal/storage/postgres"
	"github.com/ironsheep/creek-ocr/internal/storage/redisblob"
)

// needs lists the collaborators a command opens.
type needs struct {
	records   bool
	source    bool
	publisher bool
}

type runtime struct {
	catalog *catalog.Catalog
	reader  *ocr.Tesseract
	objects storage.ObjectStore
	records *postgres.RecordStore
	queue   *queue.Queue
	metrics *metrics.PipelineMetrics
	svc     *service.Service
	closers []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func (e *env) loadCatalog() (*catalog.Catalog, error) {
	if e.cfg.CatalogFile == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(e.cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", e.cfg.CatalogFile, err)
	}
	return cat, nil
}

func (e *env) newReader() *ocr.Tesseract {
	return ocr.NewTesseract(ocr.Options{
		Language:       e.cfg.OCRLanguage,
		TessdataPrefix: e.cfg.TessdataPrefix,
		Preprocess: ocr.Preprocess{
			Scale:     e.cfg.OCRScale,
			Binarize:  e.cfg.OCRBinarize,
			Threshold: e.cfg.OCRThreshold,
		},
	})
}

func (e *env) openObjects(ctx context.Context) (storage.ObjectStore, func() error, error) {
	switch e.cfg.ObjectStore {
	case "redis":
		store, err := redisblob.New(ctx, e.cfg.RedisURL, e.cfg.RedisNamespace)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := localfs.New(e.cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}

func (e *env) openQueue() (*queue.Queue, error) {
	if e.cfg.NATSURL == "" {
		return nil, errors.New("NATS_URL is not set")
	}
	return queue.NewWithOptions(e.cfg.NATSURL, e.cfg.NATSSubject, queue.Options{
		Name:   serviceName,
		Logger: e.logger,
	})
}

// open builds the service and whatever collaborators n asks for. Callers
// must Close the runtime.
func (e *env) open(ctx context.Context, n needs) (*runtime, error) {
	rt := &runtime{metrics: metrics.NewPipelineMetrics(serviceName)}

	cat, err := e.loadCatalog()
	if err != nil {
		return nil, err
	}
	rt.catalog = cat
	rt.reader = e.newReader()

	objects, closeObjects, err := e.openObjects(ctx)
	if err != nil {
		return nil, err
	}
	rt.objects = objects
	rt.closers = append(rt.closers, closeObjects)

	opts := []service.Option{
		service.WithLogger(e.logger),
		service.WithMetrics(rt.metrics),
		service.WithAssembleTimeout(e.cfg.AssembleTimeout),
		service.WithName(serviceName),
	}

	var records service.RecordStore
	if n.records {
		db, err := postgres.OpenDB(e.cfg.PostgresDSN)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		rt.records = postgres.NewRecordStore(db)
		if err := rt.records.EnsureSchema(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
		records = rt.records
	}

	if n.source {
		opts = append(opts, service.WithSource(source.NewHTTP(e.cfg.SourceURL, source.Options{
			Timeout:             e.cfg.SourceTimeout,
			ConsecutiveFailures: uint32(e.cfg.SourceBreakerFailures),
			OpenTimeout:         e.cfg.SourceBreakerOpen,
			Logger:              e.logger,
		})))
	}

	if n.publisher && e.cfg.NATSURL != "" {
		q, err := e.openQueue()
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.queue = q
		rt.closers = append(rt.closers, func() error { q.Close(); return nil })
		opts = append(opts, service.WithPublisher(q))
	}

	asm := pipeline.NewAssembler(cat, rt.reader, objects,
		pipeline.WithLogger(e.logger),
		pipeline.WithWorkers(e.cfg.AssembleWorkers),
		pipeline.WithKeyPrefix(e.cfg.KeyPrefix),
	)
	rt.svc = service.New(asm, objects, records, opts...)
	return rt, nil
}

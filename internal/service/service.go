// Package service implements the entry-point operations: processing fresh and
// stored captures, staging, backfill, purge and record queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/imaging"
	"github.com/ironsheep/creek-ocr/internal/metrics"
	"github.com/ironsheep/creek-ocr/internal/pipeline"
	"github.com/ironsheep/creek-ocr/internal/record"
	"github.com/ironsheep/creek-ocr/internal/storage"
)

// DateLayout is the layout of a record's date string.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned by Query for a malformed date.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
	// ErrNoSource is returned by fetching operations when no source is set.
	ErrNoSource = errors.New("no image source configured")
	// ErrCropKey is returned when asked to process an archived crop.
	ErrCropKey = errors.New("crop keys are not captures")
)

// Source fetches the encoded bytes of the live display image.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// RecordStore persists records keyed by (date, hour). Put overwrites an
// existing record with the same identity.
type RecordStore interface {
	Put(ctx context.Context, rec *record.Record) error
	Query(ctx context.Context, date string) ([]*record.Record, error)
}

// Publisher announces a staged object key to workers.
type Publisher interface {
	PublishStoredKey(ctx context.Context, key string) error
}

// Subscriber delivers announced keys to handler until ctx is done.
type Subscriber interface {
	SubscribeStoredKeys(ctx context.Context, handler func(context.Context, string) error) error
}

// Option configures a Service.
type Option func(*Service)

// WithSource sets the image source used by CaptureAndProcess, Stage and
// CaptureEvery. Without one those operations return ErrNoSource.
func WithSource(src Source) Option {
	return func(s *Service) { s.source = src }
}

// WithPublisher announces staged keys to workers.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records capture and fetch outcomes.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for error and staging keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAssembleTimeout bounds field extraction. A capture that runs out of
// time is stored as a partial record.
func WithAssembleTimeout(d time.Duration) Option {
	return func(s *Service) { s.assembleTimeout = d }
}

// WithName sets the service label used in metrics.
func WithName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.name = name
		}
	}
}

// Service runs the capture entry points over an Assembler and its
// collaborators. It is safe for concurrent use.
type Service struct {
	assembler *pipeline.Assembler
	objects   storage.ObjectStore
	records   RecordStore

	source          Source
	publisher       Publisher
	metrics         *metrics.PipelineMetrics
	logger          *slog.Logger
	now             func() time.Time
	assembleTimeout time.Duration
	name            string
}

// New builds a Service. records may be nil for operations that never
// persist a record (Stage and PurgeStaging).
func New(assembler *pipeline.Assembler, objects storage.ObjectStore, records RecordStore, opts ...Option) *Service {
	s := &Service{
		assembler: assembler,
		objects:   objects,
		records:   records,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		name:      "creek-ocr",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessCapture turns raw capture bytes into a stored record.
//
// The source bytes are archived under the record's key, or under an error key
// stamped with the current time when the timestamp cannot be resolved. The
// record is written to the record store last.
func (s *Service) ProcessCapture(ctx context.Context, data []byte) (*record.Record, error) {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	start := time.Now()

	if s.metrics != nil {
		s.metrics.StartCapture()
	}
	rec, err := s.processCapture(ctx, logger, data)
	if s.metrics != nil {
		s.metrics.FinishCapture(s.name, time.Since(start), rec, err)
	}

	if err != nil {
		logger.Error("capture failed", "code", failure.CodeOf(err), "err", err)
		return nil, err
	}

	id := rec.Identity()
	logger.Info("capture processed",
		"key", rec.SourceKey(),
		"date", id.Date,
		"hour", id.Hour,
		"fields", rec.Len(),
		"failed", len(rec.Failures()),
		"partial", rec.Partial(),
		"duration_ms", time.Since(start).Milliseconds())
	return rec, nil
}

func (s *Service) processCapture(ctx context.Context, logger *slog.Logger, data []byte) (*record.Record, error) {
	img, format, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("capture decoded", "format", format, "bytes", len(data))

	actx := ctx
	if s.assembleTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.assembleTimeout)
		defer cancel()
	}

	rec, err := s.assembler.Assemble(actx, img)
	if err != nil {
		if failure.Is(err, failure.TimestampUnresolved) {
			key := record.ErrorKey(s.now().Unix())
			if putErr := s.objects.Put(ctx, key, data); putErr != nil {
				return nil, errors.Join(err, putErr)
			}
			logger.Warn("unidentified capture archived", "key", key)
		}
		return nil, err
	}

	if err := s.objects.Put(ctx, rec.SourceKey(), data); err != nil {
		return nil, err
	}
	if err := s.records.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CaptureAndProcess fetches the current display image and processes it.
func (s *Service) CaptureAndProcess(ctx context.Context) (*record.Record, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.ProcessCapture(ctx, data)
}

// Stage fetches the current display image and stores it unprocessed under a
// time-stamped key, announcing the key when a publisher is configured.
func (s *Service) Stage(ctx context.Context) (string, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	key := record.StagingKey(s.now())
	if err := s.objects.Put(ctx, key, data); err != nil {
		return "", err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishStoredKey(ctx, key); err != nil {
			return key, fmt.Errorf("publish %s: %w", key, err)
		}
	}

	s.logger.Info("capture staged", "key", key, "bytes", len(data), "published", s.publisher != nil)
	return key, nil
}

// ProcessStoredKey processes a capture previously written to the object store.
func (s *Service) ProcessStoredKey(ctx context.Context, key string) (*record.Record, error) {
	if record.IsCropKey(key) {
		return nil, fmt.Errorf("%s: %w", key, ErrCropKey)
	}
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.ProcessCapture(ctx, data)
}

// BackfillReport counts the outcome of a Backfill run.
type BackfillReport struct {
	Processed int
	Failed    int
}

// Backfill reprocesses every stored capture. Failures do not stop the run;
// they are joined into the returned error.
func (s *Service) Backfill(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport

	keys, err := s.objects.List(ctx, "")
	if err != nil {
		return report, err
	}

	var errs []error
	for _, key := range keys {
		if record.IsCropKey(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.ProcessStoredKey(ctx, key); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		report.Processed++
	}

	s.logger.Info("backfill finished", "processed", report.Processed, "failed", report.Failed)
	return report, errors.Join(errs...)
}

// PurgeStaging deletes stored objects that are neither processed captures nor
// crops, and returns the deleted keys.
func (s *Service) PurgeStaging(ctx context.Context) ([]string, error) {
	keys, err := s.objects.List(ctx, "")
	if err != nil {
		return nil, err
	}

	prefix := s.assembler.KeyPrefix()
	var deleted []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) || record.IsCropKey(key) {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted = append(deleted, key)
	}

	s.logger.Info("staging purged", "deleted", len(deleted))
	return deleted, nil
}

// Query returns the records captured on a UTC date, ordered by hour.
func (s *Service) Query(ctx context.Context, date string) ([]*record.Record, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%q: %w", date, ErrInvalidDate)
	}
	return s.records.Query(ctx, date)
}

// Work processes announced keys until ctx is done.
func (s *Service) Work(ctx context.Context, sub Subscriber) error {
	s.logger.Info("worker started")
	return sub.SubscribeStoredKeys(ctx, func(ctx context.Context, key string) error {
		_, err := s.ProcessStoredKey(ctx, key)
		return err
	})
}

// CaptureEvery runs CaptureAndProcess immediately and then on every tick of
// interval until ctx is done. Individual failures are logged.
func (s *Service) CaptureEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("capture interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.CaptureAndProcess(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled capture failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) fetch(ctx context.Context) ([]byte, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	data, err := s.source.Fetch(ctx)
	if s.metrics != nil {
		s.metrics.ObserveFetch(s.name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch capture: %w", err)
	}
	return data, nil
}

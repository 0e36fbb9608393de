package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/imaging"
	"github.com/ironsheep/creek-ocr/internal/record"
)

// TextReader recognizes a single line of text restricted to whitelist.
type TextReader interface {
	ReadText(img image.Image, whitelist string) (string, error)
}

// ImageArchiver stores encoded region crops.
type ImageArchiver interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger used for per-field diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithWorkers processes fields on n goroutines. n <= 1 keeps processing
// sequential in catalog order.
func WithWorkers(n int) Option {
	return func(a *Assembler) {
		a.workers = n
	}
}

// WithKeyPrefix sets the prefix of the source key that crop keys derive from.
func WithKeyPrefix(p string) Option {
	return func(a *Assembler) {
		if p != "" {
			a.keyPrefix = p
		}
	}
}

// Assembler turns one decoded capture into a record.
//
// An Assembler holds no per-capture state and may be used for concurrent
// captures. archive must be non-nil when the catalog has image regions.
type Assembler struct {
	catalog   *catalog.Catalog
	reader    TextReader
	archive   ImageArchiver
	logger    *slog.Logger
	workers   int
	keyPrefix string
}

// NewAssembler builds an Assembler over cat. reader recognizes text
// regions and archive stores image region crops.
func NewAssembler(cat *catalog.Catalog, reader TextReader, archive ImageArchiver, opts ...Option) *Assembler {
	a := &Assembler{
		catalog:   cat,
		reader:    reader,
		archive:   archive,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:   1,
		keyPrefix: record.DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// KeyPrefix is the prefix of source keys produced by this assembler.
func (a *Assembler) KeyPrefix() string { return a.keyPrefix }

// fieldResult is the outcome of one region. Exactly one of value, failed or
// fatal is set for an attempted region.
type fieldResult struct {
	attempted bool
	value     record.Value
	failed    *record.FieldFailure
	fatal     error
}

// Assemble reads every catalog region of img.
//
// Every rectangle is checked against the image before any recognition;
// a misfit is failure.RegionOutOfBounds. The primary timestamp is resolved
// next and any problem with it is failure.TimestampUnresolved with no record.
// Each remaining region is then attempted once. Recognition and conversion
// failures only omit their field and are listed in the record's Failures.
// Errors from the archive abort the capture.
//
// When ctx ends during field processing the regions not yet started are
// skipped and the record is returned marked partial, with a nil error.
func (a *Assembler) Assemble(ctx context.Context, img image.Image) (*record.Record, error) {
	bounds := img.Bounds()
	for _, r := range a.catalog.All() {
		if err := imaging.CheckBounds(bounds, r.Rect.Left, r.Rect.Top, r.Rect.Right, r.Rect.Bottom); err != nil {
			return nil, fmt.Errorf("region %s: %w", r.ID, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identity, err := a.resolveIdentity(img)
	if err != nil {
		return nil, err
	}
	sourceKey := record.SourceKey(a.keyPrefix, identity.Unix)

	regions := a.catalog.Fields()
	results := make([]fieldResult, len(regions))

	if a.workers > 1 && len(regions) > 1 {
		a.runConcurrent(ctx, img, sourceKey, regions, results)
	} else {
		for i, r := range regions {
			if ctx.Err() != nil {
				break
			}
			results[i] = a.processField(ctx, img, sourceKey, r)
		}
	}

	fields := make(map[catalog.ID]record.Value, len(regions))
	var failures []record.FieldFailure
	partial := false

	for i, res := range results {
		switch {
		case !res.attempted:
			partial = true
		case res.fatal != nil:
			return nil, res.fatal
		case res.failed != nil:
			failures = append(failures, *res.failed)
		default:
			fields[regions[i].ID] = res.value
		}
	}

	if partial {
		a.logger.Warn("capture cut short",
			"unix", identity.Unix,
			"fields", len(fields),
			"regions", len(regions),
			"err", ctx.Err())
	}

	return record.New(identity, sourceKey, fields, failures, partial), nil
}

func (a *Assembler) resolveIdentity(img image.Image) (record.Identity, error) {
	primary := a.catalog.Primary()

	crop, err := imaging.Crop(img, primary.Rect.Left, primary.Rect.Top, primary.Rect.Right, primary.Rect.Bottom)
	if err != nil {
		return record.Identity{}, err
	}

	text, err := a.reader.ReadText(crop, primary.Whitelist)
	if err != nil {
		if failure.CodeOf(err) == "" {
			err = failure.NewOCREngine(err)
		}
		a.logger.Error("timestamp unreadable", "field", primary.ID, "err", err)
		return record.Identity{}, failure.NewTimestampUnresolved("", err)
	}

	identity, err := ResolveTimestamp(text)
	if err != nil {
		a.logger.Error("timestamp unresolved", "field", primary.ID, "raw", text, "err", err)
		return record.Identity{}, err
	}

	a.logger.Debug("timestamp resolved",
		"raw", text,
		"date", identity.Date,
		"hour", identity.Hour,
		"unix", identity.Unix)

	return identity, nil
}

// runConcurrent fans regions out to a fixed set of workers. Each worker
// writes only results[i] for the indices it receives.
func (a *Assembler) runConcurrent(ctx context.Context, img image.Image, sourceKey string, regions []catalog.Region, results []fieldResult) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	n := a.workers
	if n > len(regions) {
		n = len(regions)
	}
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[i] = a.processField(ctx, img, sourceKey, regions[i])
			}
		}()
	}

	for i := range regions {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
}

func (a *Assembler) processField(ctx context.Context, img image.Image, sourceKey string, r catalog.Region) fieldResult {
	crop, err := imaging.Crop(img, r.Rect.Left, r.Rect.Top, r.Rect.Right, r.Rect.Bottom)
	if err != nil {
		return fieldResult{attempted: true, fatal: fmt.Errorf("region %s: %w", r.ID, err)}
	}

	var text, ref string

	if r.Kind.NeedsOCR() {
		text, err = a.reader.ReadText(crop, r.Whitelist)
		if err != nil {
			return a.skip(r, "", err, failure.OCREngine)
		}
	} else {
		ref = record.CropKey(sourceKey, r.ID)

		data, err := imaging.EncodeGIF(crop)
		if err != nil {
			return fieldResult{attempted: true, fatal: fmt.Errorf("region %s: %w", r.ID, err)}
		}
		if err := a.archive.Put(ctx, ref, data); err != nil {
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return fieldResult{}
			}
			return fieldResult{attempted: true, fatal: err}
		}
	}

	v, err := Coerce(r, text, ref)
	if err != nil {
		return a.skip(r, text, err, failure.FieldCoercion)
	}

	return fieldResult{attempted: true, value: v}
}

func (a *Assembler) skip(r catalog.Region, raw string, err error, fallback failure.Code) fieldResult {
	code := failure.CodeOf(err)
	if code == "" {
		code = fallback
	}

	a.logger.Warn("field skipped",
		"field", r.ID,
		"code", code,
		"raw", raw,
		"err", err)

	return fieldResult{
		attempted: true,
		failed: &record.FieldFailure{
			ID:      r.ID,
			Code:    code,
			Raw:     raw,
			Message: err.Error(),
		},
	}
}

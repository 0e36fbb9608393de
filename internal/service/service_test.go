package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/imaging"
	"github.com/ironsheep/creek-ocr/internal/metrics"
	"github.com/ironsheep/creek-ocr/internal/pipeline"
	"github.com/ironsheep/creek-ocr/internal/record"
	"github.com/ironsheep/creek-ocr/internal/storage"
	"github.com/ironsheep/creek-ocr/internal/storage/localfs"
)

const (
	testTimestamp = "03/10/2024 7:15:30"
	testUnix      = 1710083730
	testKey       = "caspar_creek_1710083730.gif"
)

// testCatalog gives every kind a distinct whitelist so the fake reader can
// answer by whitelist alone.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Timestamp,
		catalog.Region{ID: catalog.Timestamp, Rect: catalog.Rect{Left: 0, Top: 0, Right: 100, Bottom: 20}, Kind: catalog.KindText, Whitelist: catalog.TimestampWhitelist},
		catalog.Region{ID: catalog.Stage, Rect: catalog.Rect{Left: 0, Top: 20, Right: 100, Bottom: 40}, Kind: catalog.KindDecimal, Whitelist: catalog.DecimalWhitelist},
		catalog.Region{ID: catalog.Turbidity, Rect: catalog.Rect{Left: 0, Top: 40, Right: 100, Bottom: 60}, Kind: catalog.KindInteger, Whitelist: catalog.IntegerWhitelist},
		catalog.Region{ID: catalog.GraphImage, Rect: catalog.Rect{Left: 100, Top: 0, Right: 200, Bottom: 100}, Kind: catalog.KindImage},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

type whitelistReader map[string]string

func (r whitelistReader) ReadText(_ image.Image, whitelist string) (string, error) {
	text, ok := r[whitelist]
	if !ok {
		return "", errors.New("no text")
	}
	return text, nil
}

func defaultTexts() whitelistReader {
	return whitelistReader{
		catalog.TimestampWhitelist: testTimestamp,
		catalog.DecimalWhitelist:   "1.25",
		catalog.IntegerWhitelist:   "12",
	}
}

type memRecords struct {
	mu      sync.Mutex
	records map[string]*record.Record
	putErr  error
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]*record.Record)}
}

func (m *memRecords) Put(_ context.Context, rec *record.Record) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := rec.Identity()
	m.records[fmt.Sprintf("%s/%02d", id.Date, id.Hour)] = rec
	return nil
}

func (m *memRecords) Query(_ context.Context, date string) ([]*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*record.Record
	for _, rec := range m.records {
		if rec.Identity().Date == date {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity().Hour < out[j].Identity().Hour })
	return out, nil
}

type staticSource struct {
	data []byte
	err  error
}

func (s staticSource) Fetch(context.Context) ([]byte, error) { return s.data, s.err }

type recordingPublisher struct{ keys []string }

func (p *recordingPublisher) PublishStoredKey(_ context.Context, key string) error {
	p.keys = append(p.keys, key)
	return nil
}

type harness struct {
	svc     *Service
	objects storage.ObjectStore
	records *memRecords
	capture []byte
}

var fixedNow = time.Date(2024, 3, 10, 16, 0, 5, 0, time.UTC)

func newHarness(t *testing.T, reader pipeline.TextReader, opts ...Option) *harness {
	t.Helper()
	objects, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs: %v", err)
	}
	records := newMemRecords()

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 80, 255})
		}
	}
	capture, err := imaging.EncodeGIF(img)
	if err != nil {
		t.Fatalf("encode capture: %v", err)
	}

	asm := pipeline.NewAssembler(testCatalog(t), reader, objects)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &harness{
		svc:     New(asm, objects, records, opts...),
		objects: objects,
		records: records,
		capture: capture,
	}
}

func listKeys(t *testing.T, store storage.ObjectStore) []string {
	t.Helper()
	keys, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return keys
}

func TestProcessCapture(t *testing.T) {
	h := newHarness(t, defaultTexts())
	ctx := context.Background()

	rec, err := h.svc.ProcessCapture(ctx, h.capture)
	if err != nil {
		t.Fatalf("ProcessCapture: %v", err)
	}
	if rec.SourceKey() != testKey {
		t.Errorf("source key: got %s, want %s", rec.SourceKey(), testKey)
	}
	if rec.Identity().Unix != testUnix {
		t.Errorf("unix: got %d, want %d", rec.Identity().Unix, testUnix)
	}
	if rec.Len() != 3 {
		t.Errorf("fields: got %d, want 3", rec.Len())
	}

	want := []string{"caspar_creek_1710083730.gif", "crops/caspar_creek_1710083730_graph_image.gif"}
	if got := listKeys(t, h.objects); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("stored keys: got %v, want %v", got, want)
	}

	stored, err := h.objects.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if string(stored) != string(h.capture) {
		t.Error("source bytes should be archived unchanged")
	}

	got, _ := h.records.Query(ctx, "2024-03-10")
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1", len(got))
	}
}

func TestProcessCapture_UnreadableImage(t *testing.T) {
	h := newHarness(t, defaultTexts())

	_, err := h.svc.ProcessCapture(context.Background(), []byte("not an image"))
	if !failure.Is(err, failure.UnreadableImage) {
		t.Fatalf("expected UnreadableImage, got %v", err)
	}
	if keys := listKeys(t, h.objects); len(keys) != 0 {
		t.Errorf("nothing should be stored, got %v", keys)
	}
}

func TestProcessCapture_TimestampUnresolvedArchivesErrorKey(t *testing.T) {
	texts := defaultTexts()
	texts[catalog.TimestampWhitelist] = "no timestamp here"
	h := newHarness(t, texts)

	_, err := h.svc.ProcessCapture(context.Background(), h.capture)
	if !failure.Is(err, failure.TimestampUnresolved) {
		t.Fatalf("expected TimestampUnresolved, got %v", err)
	}

	want := "error_" + "1710086405" + ".gif"
	keys := listKeys(t, h.objects)
	if len(keys) != 1 || keys[0] != want {
		t.Errorf("stored keys: got %v, want [%s]", keys, want)
	}
	if len(h.records.records) != 0 {
		t.Error("no record should be written")
	}
}

func TestProcessCapture_RecordStoreError(t *testing.T) {
	h := newHarness(t, defaultTexts())
	h.records.putErr = failure.NewStorage("put record", "2024-03-10/15", errors.New("db down"))

	_, err := h.svc.ProcessCapture(context.Background(), h.capture)
	if !failure.Is(err, failure.Storage) {
		t.Fatalf("expected Storage, got %v", err)
	}
}

func TestProcessCapture_Metrics(t *testing.T) {
	m := metrics.NewPipelineMetrics("test")
	h := newHarness(t, defaultTexts(), WithMetrics(m), WithName("test"))

	if _, err := h.svc.ProcessCapture(context.Background(), h.capture); err != nil {
		t.Fatalf("ProcessCapture: %v", err)
	}
	if _, err := h.svc.ProcessCapture(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty capture")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != "creek_pipeline_captures_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	if total != 2 {
		t.Errorf("captures_total: got %v, want 2", total)
	}
}

func TestCaptureAndProcess(t *testing.T) {
	h := newHarness(t, defaultTexts())
	h.svc.source = staticSource{data: h.capture}

	rec, err := h.svc.CaptureAndProcess(context.Background())
	if err != nil {
		t.Fatalf("CaptureAndProcess: %v", err)
	}
	if rec.SourceKey() != testKey {
		t.Errorf("source key: got %s", rec.SourceKey())
	}
}

func TestCaptureAndProcess_SourceErrors(t *testing.T) {
	h := newHarness(t, defaultTexts())

	if _, err := h.svc.CaptureAndProcess(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}

	h.svc.source = staticSource{err: errors.New("upstream down")}
	if _, err := h.svc.CaptureAndProcess(context.Background()); err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestStage(t *testing.T) {
	pub := &recordingPublisher{}
	h := newHarness(t, defaultTexts(), WithPublisher(pub))
	h.svc.source = staticSource{data: h.capture}

	key, err := h.svc.Stage(context.Background())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if key != "2024-03-10_16-00-05.gif" {
		t.Errorf("staging key: got %s", key)
	}
	if len(pub.keys) != 1 || pub.keys[0] != key {
		t.Errorf("published: got %v", pub.keys)
	}

	rec, err := h.svc.ProcessStoredKey(context.Background(), key)
	if err != nil {
		t.Fatalf("ProcessStoredKey: %v", err)
	}
	if rec.SourceKey() != testKey {
		t.Errorf("source key: got %s", rec.SourceKey())
	}
}

func TestProcessStoredKey_Errors(t *testing.T) {
	h := newHarness(t, defaultTexts())

	_, err := h.svc.ProcessStoredKey(context.Background(), "missing.gif")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = h.svc.ProcessStoredKey(context.Background(), "crops/caspar_creek_1_graph_image.gif")
	if !errors.Is(err, ErrCropKey) {
		t.Errorf("expected ErrCropKey, got %v", err)
	}
}

func TestBackfill(t *testing.T) {
	h := newHarness(t, defaultTexts())
	ctx := context.Background()

	for _, key := range []string{"2024-03-10_15-00-00.gif", "2024-03-10_16-00-00.gif"} {
		if err := h.objects.Put(ctx, key, h.capture); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := h.objects.Put(ctx, "broken.gif", []byte("garbage")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := h.objects.Put(ctx, "crops/skip_me.gif", []byte("garbage")); err != nil {
		t.Fatalf("put: %v", err)
	}

	report, err := h.svc.Backfill(ctx)
	if err == nil {
		t.Fatal("expected joined error for broken.gif")
	}
	if !strings.Contains(err.Error(), "broken.gif") || strings.Contains(err.Error(), "skip_me") {
		t.Errorf("unexpected error: %v", err)
	}
	if !failure.Is(err, failure.UnreadableImage) {
		t.Errorf("joined error should keep its code: %v", err)
	}
	if report.Processed != 2 || report.Failed != 1 {
		t.Errorf("report: got %+v, want 2 processed 1 failed", report)
	}
}

func TestPurgeStaging(t *testing.T) {
	h := newHarness(t, defaultTexts())
	ctx := context.Background()

	for _, key := range []string{
		"2024-03-10_15-00-00.gif",
		"error_1710086405.gif",
		testKey,
		"crops/caspar_creek_1710083730_graph_image.gif",
	} {
		if err := h.objects.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	deleted, err := h.svc.PurgeStaging(ctx)
	if err != nil {
		t.Fatalf("PurgeStaging: %v", err)
	}
	if strings.Join(deleted, ",") != "2024-03-10_15-00-00.gif,error_1710086405.gif" {
		t.Errorf("deleted: got %v", deleted)
	}

	want := []string{"caspar_creek_1710083730.gif", "crops/caspar_creek_1710083730_graph_image.gif"}
	if got := listKeys(t, h.objects); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("remaining: got %v, want %v", got, want)
	}
}

func TestQuery(t *testing.T) {
	h := newHarness(t, defaultTexts())
	ctx := context.Background()

	if _, err := h.svc.ProcessCapture(ctx, h.capture); err != nil {
		t.Fatalf("ProcessCapture: %v", err)
	}

	tests := []struct {
		date    string
		want    int
		wantErr bool
	}{
		{"2024-03-10", 1, false},
		{"2024-03-11", 0, false},
		{"2024-3-10", 0, true},
		{"yesterday", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			recs, err := h.svc.Query(ctx, tt.date)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(recs) != tt.want {
				t.Errorf("got %d records, want %d", len(recs), tt.want)
			}
		})
	}
}

type chanSubscriber struct{ keys []string }

func (s chanSubscriber) SubscribeStoredKeys(ctx context.Context, handler func(context.Context, string) error) error {
	for _, k := range s.keys {
		_ = handler(ctx, k)
	}
	return nil
}

func TestWork(t *testing.T) {
	h := newHarness(t, defaultTexts())
	ctx := context.Background()
	if err := h.objects.Put(ctx, "2024-03-10_15-00-00.gif", h.capture); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := h.svc.Work(ctx, chanSubscriber{keys: []string{"2024-03-10_15-00-00.gif", "missing.gif"}}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if recs, _ := h.records.Query(ctx, "2024-03-10"); len(recs) != 1 {
		t.Errorf("expected one record, got %d", len(recs))
	}
}

func TestCaptureEvery(t *testing.T) {
	h := newHarness(t, defaultTexts())
	h.svc.source = staticSource{data: h.capture}

	if err := h.svc.CaptureEvery(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.svc.CaptureEvery(ctx, time.Hour); err != nil {
		t.Fatalf("CaptureEvery: %v", err)
	}
}

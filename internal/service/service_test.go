package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/sitesift/internal/browser"
	"github.com/jmylchreest/sitesift/internal/cache"
	"github.com/jmylchreest/sitesift/internal/clock"
	"github.com/jmylchreest/sitesift/internal/database"
	"github.com/jmylchreest/sitesift/internal/extract"
	"github.com/jmylchreest/sitesift/internal/llm"
	"github.com/jmylchreest/sitesift/internal/logging"
	"github.com/jmylchreest/sitesift/internal/models"
	"github.com/jmylchreest/sitesift/internal/ratelimit"
	"github.com/jmylchreest/sitesift/internal/repository"
	"github.com/jmylchreest/sitesift/internal/retry"
	"github.com/jmylchreest/sitesift/internal/storage"
)

const testPage = `<html><head><title>Shop</title></head><body>
<h1>Products</h1>
<a href="/widget">Widget</a>
<img src="/w.png" alt="Widget photo">
</body></html>`

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, url string) (*browser.Rendered, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &browser.Rendered{URL: url, FinalURL: url, HTML: f.html, Engine: "fake", Duration: time.Millisecond}, nil
}

func (f *fakeRenderer) Name() string { return "fake" }
func (f *fakeRenderer) Close() error { return nil }

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(context.Context, string, llm.Config) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.reply}, nil
}

func (f *fakeCompleter) Provider() string { return "fake" }
func (f *fakeCompleter) Model() string    { return "fake-1" }
func (f *fakeCompleter) Close() error     { return nil }

type fixture struct {
	svc       *ExtractionService
	renderer  *fakeRenderer
	completer *fakeCompleter
	store     *cache.Store
	runs      *repository.SQLiteRunRepository
	exportDir string
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	ctx := context.Background()
	fc := clock.NewFake(time.Now())

	store, err := cache.New(t.TempDir(), cache.Options{Clock: fc, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	db, err := database.Open(ctx, database.Options{URL: ":memory:"}, logging.Discard())
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	fr := &fakeRenderer{html: testPage}
	fcmp := &fakeCompleter{reply: reply}
	runs := repository.NewSQLiteRunRepository(db)
	exportDir := t.TempDir()

	proc := extract.NewProcessor(extract.ProcessorDeps{
		Cache:     store,
		Limiter:   ratelimit.New(4*time.Second, fc),
		Completer: fcmp,
		Policy:    retry.DefaultPolicy(),
		Config:    llm.DefaultConfig(),
		Clock:     fc,
		Logger:    logging.Discard(),
	})
	svc := NewExtractionService(ExtractionDeps{
		Scraper:   NewScrapeService(fr, 8000, logging.Discard()),
		Processor: proc,
		Completer: fcmp,
		Runs:      runs,
		Exporter:  storage.NewLocalExporter(exportDir),
		ChunkSize: 8000,
		RateDelay: 4 * time.Second,
		Logger:    logging.Discard(),
	})
	return &fixture{svc: svc, renderer: fr, completer: fcmp, store: store, runs: runs, exportDir: exportDir}
}

func TestScrape_Stats(t *testing.T) {
	fr := &fakeRenderer{html: testPage}
	s := NewScrapeService(fr, 10, logging.Discard())

	res, err := s.Scrape(context.Background(), "https://example.com/shop")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if res.Title != "Shop" {
		t.Errorf("Title = %q, want Shop", res.Title)
	}
	if res.Links != 1 || res.Images != 1 {
		t.Errorf("Links = %d, Images = %d, want 1/1", res.Links, res.Images)
	}
	if !strings.Contains(res.Content, "[HYPERLINK: Widget -> https://example.com/widget]") {
		t.Errorf("Content missing link marker:\n%s", res.Content)
	}
	if res.RawLength != len(testPage) || res.CleanedLength != len(res.Content) {
		t.Errorf("RawLength = %d, CleanedLength = %d", res.RawLength, res.CleanedLength)
	}
	if res.ChunkCount < 2 {
		t.Errorf("ChunkCount = %d, want >= 2 with chunk size 10", res.ChunkCount)
	}
}

func TestScrape_InvalidURL(t *testing.T) {
	fr := &fakeRenderer{html: testPage}
	s := NewScrapeService(fr, 0, nil)

	for _, u := range []string{"", "example.com", "ftp://example.com/x", "https://"} {
		if _, err := s.Scrape(context.Background(), u); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Scrape(%q) error = %v, want ErrInvalidInput", u, err)
		}
	}
	if fr.calls != 0 {
		t.Errorf("renderer calls = %d, want 0", fr.calls)
	}
}

func TestScrape_RenderFailure(t *testing.T) {
	s := NewScrapeService(&fakeRenderer{err: errors.New("timeout")}, 0, nil)

	if _, err := s.Scrape(context.Background(), "https://example.com"); !errors.Is(err, ErrRenderFailed) {
		t.Errorf("Scrape() error = %v, want ErrRenderFailed", err)
	}
}

func TestExtract_RecordsRunAndExports(t *testing.T) {
	f := newFixture(t, "- Widget")
	ctx := context.Background()

	var progress []int
	out, err := f.svc.Extract(ctx, ExtractInput{
		URL:         "https://example.com/shop",
		Instruction: "list products",
		Export:      true,
		OnProgress:  func(i, _ int) { progress = append(progress, i) },
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if out.Text != "--- From Section 1 ---\n- Widget" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(progress) != 1 {
		t.Errorf("progress calls = %v, want 1", progress)
	}

	data, err := os.ReadFile(out.ExportLocation)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(data) != out.Text {
		t.Errorf("exported = %q, want run text", data)
	}
	if !strings.HasSuffix(out.ExportLocation, "scraped_data_example.com_shop.txt") {
		t.Errorf("ExportLocation = %q", out.ExportLocation)
	}

	run, err := f.runs.GetByID(ctx, out.RunID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	if run.Sections != 1 || run.APICalls != 1 || run.ChunkCount != 1 {
		t.Errorf("run counters = %+v", run)
	}
	if run.Engine != "fake" {
		t.Errorf("Engine = %q, want fake", run.Engine)
	}
}

func TestExtract_SecondRunIsCached(t *testing.T) {
	f := newFixture(t, "- Widget")
	ctx := context.Background()
	in := ExtractInput{URL: "https://example.com", Instruction: "list products"}

	if _, err := f.svc.Extract(ctx, in); err != nil {
		t.Fatalf("first Extract() error = %v", err)
	}
	out, err := f.svc.Extract(ctx, in)
	if err != nil {
		t.Fatalf("second Extract() error = %v", err)
	}

	if f.completer.calls != 1 {
		t.Errorf("model calls = %d, want 1", f.completer.calls)
	}
	if out.Report.CacheHits != 1 || out.Report.APICalls != 0 {
		t.Errorf("CacheHits = %d, APICalls = %d, want 1/0", out.Report.CacheHits, out.Report.APICalls)
	}
}

func TestExtract_ContentSkipsRenderer(t *testing.T) {
	f := newFixture(t, "found")

	out, err := f.svc.Extract(context.Background(), ExtractInput{
		Content:     strings.Repeat("x", 20),
		Instruction: "anything",
		ChunkSize:   10,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if f.renderer.calls != 0 {
		t.Errorf("renderer calls = %d, want 0", f.renderer.calls)
	}
	if out.ChunkCount != 2 {
		t.Errorf("ChunkCount = %d, want 2", out.ChunkCount)
	}
}

func TestExtract_RenderFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t, "x")
	f.renderer.err = errors.New("navigation timeout")
	ctx := context.Background()

	_, err := f.svc.Extract(ctx, ExtractInput{URL: "https://example.com", Instruction: "x"})
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("Extract() error = %v, want ErrRenderFailed", err)
	}

	runs, err := f.runs.List(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("List() = %v, %v", runs, err)
	}
	if runs[0].Status != models.RunStatusFailed || runs[0].Error == "" {
		t.Errorf("run = %+v, want failed with error", runs[0])
	}
}

func TestExtract_Validation(t *testing.T) {
	f := newFixture(t, "x")

	tests := []struct {
		name string
		in   ExtractInput
	}{
		{"missing instruction", ExtractInput{URL: "https://example.com"}},
		{"blank instruction", ExtractInput{URL: "https://example.com", Instruction: "  "}},
		{"missing source", ExtractInput{Instruction: "x"}},
		{"bad url", ExtractInput{URL: "not a url", Instruction: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Extract(context.Background(), tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Extract() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	f := newFixture(t, "found")
	ctx := context.Background()
	content := strings.Repeat("a", 10) + strings.Repeat("b", 10) + strings.Repeat("c", 10)

	// Warm the cache for the first chunk only.
	_ = f.store.Store(cache.KeyFor(strings.Repeat("a", 10), "x"), "cached")

	est, err := f.svc.Estimate(ctx, EstimateInput{Content: content, Instruction: "x", ChunkSize: 10})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if est.Total != 3 || est.Cached != 1 || est.APICalls != 2 {
		t.Errorf("Estimate() = %+v", est.Estimate)
	}
	if est.EstimatedDuration != 8*time.Second {
		t.Errorf("EstimatedDuration = %v, want 8s", est.EstimatedDuration)
	}
	if est.ContentLength != 30 {
		t.Errorf("ContentLength = %d, want 30", est.ContentLength)
	}
}

func TestCheck(t *testing.T) {
	f := newFixture(t, "Hello from Gemini!")

	res := f.svc.Check(context.Background())
	if !res.OK || res.Reply != "Hello from Gemini!" {
		t.Errorf("Check() = %+v", res)
	}

	f.completer.err = &llm.StatusError{StatusCode: 401, Body: "bad key"}
	res = f.svc.Check(context.Background())
	if res.OK || res.Category != llm.CategoryAuth {
		t.Errorf("Check() = %+v, want auth failure", res)
	}
}

func TestRuns_HistoryDisabled(t *testing.T) {
	svc := NewExtractionService(ExtractionDeps{Processor: nil, Completer: &fakeCompleter{}})

	if _, err := svc.GetRun(context.Background(), "x"); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("GetRun() error = %v, want ErrHistoryDisabled", err)
	}
	if _, err := svc.ListRuns(context.Background(), 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("ListRuns() error = %v, want ErrHistoryDisabled", err)
	}
}

type fakePurger struct {
	age time.Duration
	n   int
	err error
}

func (f *fakePurger) PurgeOlderThan(age time.Duration) (int, error) {
	f.age = age
	return f.n, f.err
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, "x")
	ctx := context.Background()

	old := &models.Run{ID: "old", URL: "https://a", Instruction: "x", CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}
	recent := &models.Run{ID: "recent", URL: "https://b", Instruction: "x", CreatedAt: time.Now()}
	for _, r := range []*models.Run{old, recent} {
		if err := f.runs.Create(ctx, r); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	purger := &fakePurger{n: 4}
	svc := NewCleanupService(purger, f.runs, 48*time.Hour, 30*24*time.Hour, logging.Discard())
	res := svc.Cleanup(ctx)

	if purger.age != 48*time.Hour {
		t.Errorf("purge age = %v, want 48h", purger.age)
	}
	if res.CacheEntriesRemoved != 4 || res.RunsDeleted != 1 {
		t.Errorf("Cleanup() = %+v", res)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestCleanup_CollectsErrors(t *testing.T) {
	svc := NewCleanupService(&fakePurger{err: errors.New("disk")}, nil, time.Hour, 0, logging.Discard())

	res := svc.Cleanup(context.Background())
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %v, want 1", res.Errors)
	}
}

func TestCleanup_RunStopsOnCancel(t *testing.T) {
	purger := &fakePurger{}
	svc := NewCleanupService(purger, nil, time.Hour, 0, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

var _ extract.ChunkProcessor = (*extract.Processor)(nil)

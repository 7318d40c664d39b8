package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/sitesift/internal/logging"
)

// scriptedProcessor returns a fixed Result per chunk text.
type scriptedProcessor struct {
	results map[string]Result
	cached  map[string]bool
	seen    []string
}

func (s *scriptedProcessor) Process(_ context.Context, chunk, _ string) Result {
	s.seen = append(s.seen, chunk)
	if r, ok := s.results[chunk]; ok {
		return r
	}
	return Empty()
}

func (s *scriptedProcessor) Cached(chunk, _ string) bool {
	return s.cached[chunk]
}

func ok(text string) Result {
	r := Success(text)
	r.Attempts = 1
	return r
}

func TestRun_AllSucceed(t *testing.T) {
	sp := &scriptedProcessor{results: map[string]Result{
		"A": ok("result A"),
		"B": ok("result B"),
	}}
	o := NewOrchestrator(sp, time.Second, logging.Discard())

	got := o.Run(context.Background(), []string{"A", "B"}, "x", nil)

	want := "--- From Section 1 ---\nresult A\n\n--- From Section 2 ---\nresult B"
	if got != want {
		t.Errorf("Run() =\n%q\nwant\n%q", got, want)
	}
}

func TestRun_EarlyStopOnQuota(t *testing.T) {
	sp := &scriptedProcessor{results: map[string]Result{
		"A": ok("result A"),
		"B": QuotaExhausted(errors.New("429")),
		"C": ok("result C"),
	}}
	o := NewOrchestrator(sp, time.Second, logging.Discard())

	rep := o.Execute(context.Background(), []string{"A", "B", "C"}, "x", nil)

	if !strings.Contains(rep.Text, "result A") {
		t.Error("output missing section 1 result")
	}
	if !strings.Contains(rep.Text, "--- Processing stopped at section 2 due to quota limits ---") {
		t.Errorf("output missing stop notice:\n%s", rep.Text)
	}
	if strings.Contains(rep.Text, "result C") {
		t.Error("output contains result after early stop")
	}
	if len(sp.seen) != 2 {
		t.Errorf("processed chunks = %v, want [A B]", sp.seen)
	}
	if rep.StoppedAt != 2 {
		t.Errorf("StoppedAt = %d, want 2", rep.StoppedAt)
	}
}

func TestRun_PartialFailureContinues(t *testing.T) {
	sp := &scriptedProcessor{results: map[string]Result{
		"A": ok("result A"),
		"B": TransientFailure(errors.New("connection reset")),
		"C": ok("result C"),
	}}
	o := NewOrchestrator(sp, time.Second, logging.Discard())

	rep := o.Execute(context.Background(), []string{"A", "B", "C"}, "x", nil)

	want := "--- From Section 1 ---\nresult A\n\n--- From Section 3 ---\nresult C"
	if rep.Text != want {
		t.Errorf("Text =\n%q\nwant\n%q", rep.Text, want)
	}
	if strings.Contains(rep.Text, "stopped") {
		t.Error("unexpected stop notice")
	}
	if rep.StoppedAt != 0 || rep.Failures != 1 {
		t.Errorf("StoppedAt = %d, Failures = %d, want 0/1", rep.StoppedAt, rep.Failures)
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	o := NewOrchestrator(&scriptedProcessor{}, time.Second, logging.Discard())

	if got := o.Run(context.Background(), nil, "x", nil); got != NoResultsMessage {
		t.Errorf("Run(nil) = %q, want %q", got, NoResultsMessage)
	}
}

func TestRun_AllEmpty(t *testing.T) {
	o := NewOrchestrator(&scriptedProcessor{}, time.Second, logging.Discard())

	rep := o.Execute(context.Background(), []string{"A", "B"}, "x", nil)
	if rep.Text != NoResultsMessage {
		t.Errorf("Text = %q, want apology", rep.Text)
	}
	if rep.Empty != 2 || rep.Failures != 0 {
		t.Errorf("Empty = %d, Failures = %d, want 2/0", rep.Empty, rep.Failures)
	}
}

func TestRun_SuccessContainingSorryIsKept(t *testing.T) {
	sp := &scriptedProcessor{results: map[string]Result{
		"A": ok("Sorry Sorry (album), released 2009"),
	}}
	o := NewOrchestrator(sp, time.Second, logging.Discard())

	got := o.Run(context.Background(), []string{"A"}, "x", nil)
	if !strings.Contains(got, "Sorry Sorry (album)") {
		t.Errorf("legitimate result dropped: %q", got)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	o := NewOrchestrator(&scriptedProcessor{}, time.Second, logging.Discard())

	var calls [][2]int
	o.Run(context.Background(), []string{"A", "B", "C"}, "x", func(i, total int) {
		calls = append(calls, [2]int{i, total})
	})

	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(calls) != len(want) {
		t.Fatalf("progress calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestRun_CancelledStopsBeforeNextChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sp := &scriptedProcessor{results: map[string]Result{"A": ok("result A")}}
	o := NewOrchestrator(sp, time.Second, logging.Discard())

	got := o.Run(ctx, []string{"A", "B"}, "x", func(i, _ int) {
		if i == 1 {
			cancel()
		}
	})

	if len(sp.seen) != 1 {
		t.Errorf("processed = %v, want only A", sp.seen)
	}
	if !strings.Contains(got, "result A") {
		t.Errorf("Run() = %q, want section 1 kept", got)
	}
}

func TestExecute_Counters(t *testing.T) {
	cached := Success("from cache")
	cached.FromCache = true
	retried := Success("after retry")
	retried.Attempts = 3
	sp := &scriptedProcessor{results: map[string]Result{
		"A": cached,
		"B": retried,
	}}
	o := NewOrchestrator(sp, time.Second, logging.Discard())

	rep := o.Execute(context.Background(), []string{"A", "B", "C"}, "x", nil)

	if rep.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", rep.CacheHits)
	}
	if rep.APICalls != 3 {
		t.Errorf("APICalls = %d, want 3", rep.APICalls)
	}
	if rep.Sections != 2 || rep.Empty != 1 {
		t.Errorf("Sections = %d, Empty = %d, want 2/1", rep.Sections, rep.Empty)
	}
	if eff := rep.CacheEfficiency(); eff < 33.3 || eff > 33.4 {
		t.Errorf("CacheEfficiency() = %v, want ~33.3", eff)
	}
}

func TestEstimate(t *testing.T) {
	sp := &scriptedProcessor{cached: map[string]bool{"A": true, "C": true}}
	o := NewOrchestrator(sp, 4*time.Second, logging.Discard())

	est := o.Estimate([]string{"A", "B", "C", "D", "E"}, "x")

	if est.Total != 5 || est.Cached != 2 || est.APICalls != 3 {
		t.Errorf("Estimate() = %+v", est)
	}
	if est.EstimatedDuration != 12*time.Second {
		t.Errorf("EstimatedDuration = %v, want 12s", est.EstimatedDuration)
	}
	if est.CachePercent() != 40 {
		t.Errorf("CachePercent() = %v, want 40", est.CachePercent())
	}
}

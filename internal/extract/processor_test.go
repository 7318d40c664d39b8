package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/sitesift/internal/cache"
	"github.com/jmylchreest/sitesift/internal/clock"
	"github.com/jmylchreest/sitesift/internal/llm"
	"github.com/jmylchreest/sitesift/internal/logging"
	"github.com/jmylchreest/sitesift/internal/retry"
)

// mockCompleter replies from a queue of responses keyed by call order.
type mockCompleter struct {
	mu      sync.Mutex
	replies []mockReply
	prompts []string
}

type mockReply struct {
	text string
	err  error
}

func (m *mockCompleter) Complete(_ context.Context, prompt string, _ llm.Config) (*llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return &llm.Completion{Text: "default"}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Completion{Text: r.text}, nil
}

func (m *mockCompleter) Provider() string { return "mock" }
func (m *mockCompleter) Model() string    { return "mock-1" }
func (m *mockCompleter) Close() error     { return nil }

func (m *mockCompleter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type countingLimiter struct{ waits int }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return ctx.Err()
}

type fixture struct {
	proc      *Processor
	store     *cache.Store
	completer *mockCompleter
	limiter   *countingLimiter
	clock     *clock.Fake
}

func newFixture(t *testing.T, replies ...mockReply) *fixture {
	t.Helper()
	fc := clock.NewFake(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	store, err := cache.New(t.TempDir(), cache.Options{Clock: fc, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	mc := &mockCompleter{replies: replies}
	lim := &countingLimiter{}
	proc := NewProcessor(ProcessorDeps{
		Cache:     store,
		Limiter:   lim,
		Completer: mc,
		Policy:    retry.DefaultPolicy(),
		Config:    llm.DefaultConfig(),
		Clock:     fc,
		Logger:    logging.Discard(),
	})
	return &fixture{proc: proc, store: store, completer: mc, limiter: lim, clock: fc}
}

var quotaErr = &llm.StatusError{StatusCode: 429, Body: "quota"}

func TestProcess_SuccessIsTrimmedAndCached(t *testing.T) {
	f := newFixture(t, mockReply{text: "  - Widget: $10\n"})

	r := f.proc.Process(context.Background(), "chunk", "prices")

	if r.Kind != KindSuccess || r.Text != "- Widget: $10" {
		t.Fatalf("Process() = %+v, want trimmed success", r)
	}
	if r.FromCache {
		t.Error("first call reported FromCache")
	}
	if got, ok := f.store.Lookup(cache.KeyFor("chunk", "prices")); !ok || got != "- Widget: $10" {
		t.Errorf("cache = %q/%v, want stored trimmed result", got, ok)
	}
	if f.limiter.waits != 1 {
		t.Errorf("limiter waits = %d, want 1", f.limiter.waits)
	}
}

func TestProcess_CacheHitSkipsLimiterAndModel(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Store(cache.KeyFor("chunk", "prices"), "cached answer")

	r := f.proc.Process(context.Background(), "chunk", "prices")

	if r.Kind != KindSuccess || r.Text != "cached answer" || !r.FromCache {
		t.Fatalf("Process() = %+v, want cached success", r)
	}
	if f.completer.calls() != 0 {
		t.Errorf("model calls = %d, want 0", f.completer.calls())
	}
	if f.limiter.waits != 0 {
		t.Errorf("limiter waits = %d, want 0", f.limiter.waits)
	}
}

func TestProcess_EmptyIsNotCached(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"blank", "   "},
		{"quoted empty", "''"},
		{"no match phrase", "No relevant information found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, mockReply{text: tt.reply}, mockReply{text: tt.reply})

			r := f.proc.Process(context.Background(), "chunk", "prices")
			if r.Kind != KindEmpty {
				t.Fatalf("Process() kind = %v, want empty", r.Kind)
			}
			if f.proc.Cached("chunk", "prices") {
				t.Error("empty result was cached")
			}

			// A second run asks the model again.
			f.proc.Process(context.Background(), "chunk", "prices")
			if f.completer.calls() != 2 {
				t.Errorf("model calls = %d, want 2", f.completer.calls())
			}
		})
	}
}

func TestProcess_PartialNoMatchIsKept(t *testing.T) {
	reply := "Emails:\n- sales@example.com\n- help@example.com\nPhone numbers: no relevant information found."
	f := newFixture(t, mockReply{text: reply})

	r := f.proc.Process(context.Background(), "chunk", "emails and phones")

	if r.Kind != KindSuccess || r.Text != reply {
		t.Fatalf("Process() = %+v, want success with the full reply", r)
	}
	if !f.proc.Cached("chunk", "emails and phones") {
		t.Error("partial result was not cached")
	}
}

func TestProcess_QuotaExhausted(t *testing.T) {
	f := newFixture(t,
		mockReply{err: quotaErr}, mockReply{err: quotaErr},
		mockReply{err: quotaErr}, mockReply{err: quotaErr},
	)

	r := f.proc.Process(context.Background(), "chunk", "prices")

	if r.Kind != KindQuotaExhausted {
		t.Fatalf("Process() kind = %v, want quota_exhausted", r.Kind)
	}
	if r.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", r.Attempts)
	}
	if f.limiter.waits != 4 {
		t.Errorf("limiter waits = %d, want one per attempt", f.limiter.waits)
	}
	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}
	got := f.clock.Sleeps()
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("backoff = %v, want %v", got, want)
	}
	if f.proc.Cached("chunk", "prices") {
		t.Error("failure was cached")
	}
}

func TestProcess_TransientFailure(t *testing.T) {
	boom := errors.New("connection reset")
	f := newFixture(t,
		mockReply{err: boom}, mockReply{err: boom},
		mockReply{err: boom}, mockReply{err: boom},
	)

	r := f.proc.Process(context.Background(), "chunk", "prices")

	if r.Kind != KindTransientFailure {
		t.Fatalf("Process() kind = %v, want transient_failure", r.Kind)
	}
	if !strings.Contains(r.Detail(), "connection reset") {
		t.Errorf("Detail() = %q", r.Detail())
	}
}

func TestProcess_RecoversAfterQuota(t *testing.T) {
	f := newFixture(t, mockReply{err: quotaErr}, mockReply{text: "found it"})

	r := f.proc.Process(context.Background(), "chunk", "prices")

	if r.Kind != KindSuccess || r.Text != "found it" {
		t.Fatalf("Process() = %+v, want success", r)
	}
	if r.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", r.Attempts)
	}
}

func TestProcess_PromptEmbedsChunkAndInstruction(t *testing.T) {
	f := newFixture(t, mockReply{text: "x"})
	f.proc.Process(context.Background(), "THE CHUNK BODY", "list all emails")

	if len(f.completer.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(f.completer.prompts))
	}
	p := f.completer.prompts[0]
	if !strings.Contains(p, "THE CHUNK BODY") || !strings.Contains(p, "**list all emails**") {
		t.Errorf("prompt missing chunk or instruction:\n%s", p)
	}
}

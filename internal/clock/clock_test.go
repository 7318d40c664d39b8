package clock

import (
	"context"
	"testing"
	"time"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if got := f.Now().Sub(start); got != 5*time.Second {
		t.Errorf("elapsed = %v, want 5s", got)
	}
	if got := f.Sleeps(); len(got) != 1 || got[0] != 5*time.Second {
		t.Errorf("Sleeps() = %v, want [5s]", got)
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	f := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Second); err != context.Canceled {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if len(f.Sleeps()) != 0 {
		t.Error("cancelled Sleep should not be recorded")
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (Real{}).Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
}

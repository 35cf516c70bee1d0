package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReal_Sleep(t *testing.T) {
	start := time.Now()
	if err := (Real{}).Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 20ms", elapsed)
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := (Real{}).Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled Sleep took %v", elapsed)
	}
}

func TestReal_SleepZero(t *testing.T) {
	if err := (Real{}).Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) error = %v", err)
	}
}

func TestVirtual(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewVirtual(start)

	if err := v.Sleep(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	v.Advance(time.Second)
	if err := v.Sleep(context.Background(), 500*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}

	if got, want := v.Now(), start.Add(3500*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if got := v.Sleeps(); len(got) != 2 || got[0] != 2*time.Second || got[1] != 500*time.Millisecond {
		t.Errorf("Sleeps() = %v", got)
	}
	if got := v.Slept(); got != 2500*time.Millisecond {
		t.Errorf("Slept() = %v, want 2.5s", got)
	}
}

func TestVirtual_SleepCancelled(t *testing.T) {
	v := NewVirtual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := v.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if len(v.Sleeps()) != 0 {
		t.Error("cancelled sleep should not be recorded")
	}
}

func TestVirtual_ConcurrentSleepsAreSerialised(t *testing.T) {
	start := time.Unix(0, 0)
	v := NewVirtual(start)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.Sleep(context.Background(), time.Second); err != nil {
				t.Errorf("Sleep() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Four overlapping one-second sleeps advance the shared timeline by four
	// seconds, not one.
	if got, want := v.Now(), start.Add(4*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if got := len(v.Sleeps()); got != 4 {
		t.Errorf("len(Sleeps()) = %d, want 4", got)
	}
	if got := v.Slept(); got != 4*time.Second {
		t.Errorf("Slept() = %v, want 4s", got)
	}
}

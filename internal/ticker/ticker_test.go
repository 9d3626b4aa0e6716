package ticker

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type recorder struct {
	ticks chan int
	done  chan int
}

func newRecorder() *recorder {
	return &recorder{
		ticks: make(chan int, 1024),
		done:  make(chan int, 4),
	}
}

func (r *recorder) onTick(_ context.Context, elapsed int) { r.ticks <- elapsed }
func (r *recorder) onDone(_ context.Context, elapsed int) { r.done <- elapsed }

func (r *recorder) nextTick(t *testing.T) int {
	t.Helper()
	select {
	case v := <-r.ticks:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
		return -1
	}
}

func TestTimerReportsEverySecond(t *testing.T) {
	for _, d := range []int{0, 1, 5, 60} {
		mock := clock.NewMock()
		rec := newRecorder()

		tm := Start(context.Background(), Config{Seconds: d, Interval: time.Second, Clock: mock}, rec.onTick, rec.onDone)

		got := []int{rec.nextTick(t)}
		for i := 0; i < d; i++ {
			// Each tick is consumed before the next Add so none is dropped.
			mock.Add(time.Second)
			got = append(got, rec.nextTick(t))
		}

		select {
		case final := <-rec.done:
			if final != d {
				t.Fatalf("completion value = %d, want %d", final, d)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("duration %d: completion not called", d)
		}
		<-tm.done

		if len(got) != d+1 {
			t.Fatalf("duration %d: got %d ticks, want %d", d, len(got), d+1)
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("duration %d: tick %d = %d, want strictly increasing count", d, i, v)
			}
		}
		if got[len(got)-1] != d {
			t.Fatalf("last tick = %d, want %d", got[len(got)-1], d)
		}
		select {
		case v := <-rec.done:
			t.Fatalf("completion called twice, second value %d", v)
		case v := <-rec.ticks:
			t.Fatalf("tick %d after completion", v)
		default:
		}
	}
}

func TestStopSuppressesCompletion(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecorder()

	tm := Start(context.Background(), Config{Seconds: 3, Interval: time.Second, Clock: mock}, rec.onTick, rec.onDone)

	rec.nextTick(t)
	mock.Add(time.Second)
	rec.nextTick(t)
	mock.Add(time.Second)
	if v := rec.nextTick(t); v != 2 {
		t.Fatalf("tick = %d, want 2", v)
	}

	tm.Stop()

	// Enough time to finish the run had the timer still been live.
	mock.Add(5 * time.Second)

	select {
	case v := <-rec.done:
		t.Fatalf("completion called after stop with %d", v)
	case v := <-rec.ticks:
		t.Fatalf("tick %d delivered after stop", v)
	default:
	}
	// Stop is idempotent.
	tm.Stop()
}

func TestParentContextCancelStopsTimer(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	tm := Start(ctx, Config{Seconds: 3, Interval: time.Second, Clock: mock}, rec.onTick, rec.onDone)
	rec.nextTick(t)
	cancel()

	select {
	case <-tm.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not exit on context cancel")
	}
	if len(rec.done) != 0 {
		t.Fatalf("completion called after cancel")
	}
}

func TestRealClockShortRun(t *testing.T) {
	rec := newRecorder()

	tm := Start(context.Background(), Config{Seconds: 3, Interval: time.Millisecond}, rec.onTick, rec.onDone)

	select {
	case v := <-rec.done:
		if v != 3 {
			t.Fatalf("completion value = %d, want 3", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("real clock timer never completed")
	}
	tm.Stop()

	if len(rec.ticks) != 4 {
		t.Fatalf("got %d ticks, want 4", len(rec.ticks))
	}
}

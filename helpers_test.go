package settle_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// async runs f on a new goroutine and returns a channel receiving its
// result.
func async[T any](f func() T) <-chan T {
	ch := make(chan T, 1)
	go func() {
		ch <- f()
	}()
	return ch
}

// driveClock advances clk by step whenever a goroutine is waiting on it,
// until result delivers. onTick runs after every advance with the total
// time advanced; returning false stops advancing and waits for the result.
func driveClock[T any](t *testing.T, clk *clockwork.FakeClock, step time.Duration, result <-chan T, onTick func(elapsed time.Duration) bool) T {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	var elapsed time.Duration
	for {
		select {
		case r := <-result:
			return r
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("fake clock driver gave up after advancing %v", elapsed)
		}

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		err := clk.BlockUntilContext(ctx, 1)
		cancel()
		if err != nil {
			continue
		}

		clk.Advance(step)
		elapsed += step
		if onTick != nil && !onTick(elapsed) {
			select {
			case r := <-result:
				return r
			case <-time.After(5 * time.Second):
				t.Fatalf("no result after stopping the fake clock at %v", elapsed)
			}
		}
	}
}

type result[T any] struct {
	val T
	err error
}

package tensor

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// workers bounds the goroutines a single kernel call may use.
var workers atomic.Int32

func init() { workers.Store(1) }

// SetWorkers sets how many goroutines Linear and the convolution kernels may
// split their rows across. n <= 1 runs kernels on the calling goroutine.
func SetWorkers(n int) {
	workers.Store(int32(min(max(n, 1), 1<<16)))
}

// Workers reports the current kernel worker count.
func Workers() int { return int(workers.Load()) }

// Parallel splits [0, n) into contiguous ranges and runs fn on each, using up
// to Workers goroutines. Ranges never overlap, so fn may write rows of a
// shared output without locking.
func Parallel(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	w := min(Workers(), n)
	if w <= 1 {
		fn(0, n)
		return
	}

	step := (n + w - 1) / w

	var g errgroup.Group
	for lo := 0; lo < n; lo += step {
		g.Go(func() error {
			fn(lo, min(lo+step, n))
			return nil
		})
	}

	_ = g.Wait()
}

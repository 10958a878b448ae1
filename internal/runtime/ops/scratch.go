package ops

import "sync"

var scratchPool = sync.Pool{New: func() any { return new([]float32) }}

// scratch returns a zeroed buffer of n floats. Release it with release.
func scratch(n int) *[]float32 {
	p := scratchPool.Get().(*[]float32)
	if cap(*p) < n {
		*p = make([]float32, n)
	} else {
		*p = (*p)[:n]
		clear(*p)
	}

	return p
}

func release(p *[]float32) { scratchPool.Put(p) }

package data

import "sync"

var bufPool = make(map[int]*sync.Pool)

func borrowBuf(n int) []float32 {
	if p, ok := bufPool[n]; ok {
		return p.Get().([]float32)
	}
	return make([]float32, n)
}

func returnBuf(buf []float32) {
	n := len(buf)
	if _, ok := bufPool[n]; !ok {
		bufPool[n] = &sync.Pool{
			New: func() interface{} { return make([]float32, n) },
		}
	}
	bufPool[n].Put(buf)
}

func zero(xs []float32) {
	for i := range xs {
		xs[i] = 0
	}
}

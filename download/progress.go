package download

import "sync/atomic"

// Progresser receives the progression of a track: Init gives the expected size,
// Update the bytes received so far and the size estimated at this point.
type Progresser interface {
	Init(size int64)
	Update(count int64, size int64)
}

type nopProgresser struct{}

func (nopProgresser) Init(int64)          {}
func (nopProgresser) Update(int64, int64) {}

// progression estimates the final size of a track from the bytes received
// and the share of the presentation already fetched.
type progression struct {
	p     Progresser
	bytes atomic.Int64
	total int64 // presentation duration in ns, 0 when unknown
	done  atomic.Int64
}

func newProgression(p Progresser, total int64) *progression {
	if p == nil {
		p = nopProgresser{}
	}
	pr := &progression{p: p, total: total}
	p.Init(0)
	return pr
}

func (pr *progression) add(n int64, d int64) {
	read := pr.bytes.Add(n)
	done := pr.done.Add(d)
	estimated := read
	if pr.total > 0 && done > 0 && done < pr.total {
		estimated = int64(float64(read) * float64(pr.total) / float64(done))
		if estimated < read {
			estimated = read + 1024
		}
	}
	pr.p.Update(read, estimated)
}

func (pr *progression) finish() {
	read := pr.bytes.Load()
	pr.p.Update(read, read)
}

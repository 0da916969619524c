package main

import (
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBar renders the progression of a track. Update may be called from
// several goroutines.
type progressBar struct {
	mu    sync.Mutex
	start time.Time
	last  time.Time
	bar   *mpb.Bar
}

// progressBars holds the bars of one download
type progressBars struct {
	mu   sync.Mutex
	pc   *mpb.Progress
	bars []*progressBar
}

func newProgressBars(pc *mpb.Progress) *progressBars {
	return &progressBars{pc: pc}
}

// NewBar adds a bar named name
func (pb *progressBars) NewBar(name string) *progressBar {
	b := &progressBar{}
	b.bar = pb.pc.AddBar(0,
		mpb.BarWidth(24),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 8, C: decor.DindentRight}),
			decor.CountersKibiByte("% .1f / % .1f", decor.WC{W: 22, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WC{W: 14}),
		),
	)
	pb.mu.Lock()
	pb.bars = append(pb.bars, b)
	pb.mu.Unlock()
	return b
}

// Wait aborts the bars left incomplete and waits the rendering of the others
func (pb *progressBars) Wait() {
	pb.mu.Lock()
	for _, b := range pb.bars {
		if !b.bar.Completed() {
			b.bar.Abort(false)
		}
	}
	pb.mu.Unlock()
	pb.pc.Wait()
}

func (p *progressBar) Init(size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.last = p.start
	if size > 0 {
		p.bar.SetTotal(size, false)
	}
}

func (p *progressBar) Update(count int64, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.bar.EwmaSetCurrent(count, now.Sub(p.last))
	p.bar.SetTotal(size, count >= size)
	p.last = now
}

// lazyBar creates its bar at the first Init call
type lazyBar struct {
	once sync.Once
	pb   *progressBars
	name string
	bar  *progressBar
}

func (l *lazyBar) Init(size int64) {
	l.once.Do(func() { l.bar = l.pb.NewBar(l.name) })
	l.bar.Init(size)
}

func (l *lazyBar) Update(count int64, size int64) {
	if l.bar != nil {
		l.bar.Update(count, size)
	}
}

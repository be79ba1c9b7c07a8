package downloader

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

const progressInterval = 100 * time.Millisecond

// progressWriter counts bytes written through it and reports the completed
// fraction of the expected total, at most once per progressInterval.
// A fetch that downloads several streams shares one writer; offset and
// total describe the span of the overall fetch this stream covers.
type progressWriter struct {
	report     ProgressFunc
	total      int64
	offset     int64
	written    atomic.Int64
	lastUpdate atomic.Int64 // Unix nanoseconds
	finished   atomic.Bool
}

func newProgressWriter(total int64, report ProgressFunc) *progressWriter {
	if report == nil {
		report = func(float64) {}
	}
	pw := &progressWriter{report: report, total: total}
	pw.lastUpdate.Store(time.Now().UnixNano())
	return pw
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n := len(b)
	p.written.Add(int64(n))

	now := time.Now().UnixNano()
	last := p.lastUpdate.Load()
	if now-last >= progressInterval.Nanoseconds() {
		if p.lastUpdate.CompareAndSwap(last, now) {
			p.emit()
		}
	}
	return n, nil
}

// Advance marks the start of the next stream of a multi-stream fetch.
func (p *progressWriter) Advance() {
	p.offset += p.written.Swap(0)
}

// Fraction returns the completed share of the fetch.
func (p *progressWriter) Fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	return clampFraction(float64(p.offset+p.written.Load()) / float64(p.total))
}

func (p *progressWriter) emit() {
	if p.finished.Load() {
		return
	}
	p.report(p.Fraction())
}

// Finish reports completion once.
func (p *progressWriter) Finish() {
	if p.finished.Swap(true) {
		return
	}
	p.report(1)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
		return r.r.Read(p)
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	reader := &contextReader{ctx: ctx, r: src}
	return io.Copy(dst, reader)
}

package rar

import (
	"context"
	"io"

	"github.com/meigma/rarfs/cache"
)

// progressWriter counts bytes written through it and reports progress
// every interval bytes.
type progressWriter struct {
	w        io.Writer
	ctx      context.Context
	fn       cache.ProgressFunc
	event    cache.ProgressEvent
	interval int64
	next     int64
}

func newProgressWriter(ctx context.Context, w io.Writer, fn cache.ProgressFunc, event cache.ProgressEvent, interval int64) *progressWriter {
	return &progressWriter{w: w, ctx: ctx, fn: fn, event: event, interval: interval, next: interval}
}

// Write implements io.Writer. It fails with cache.ErrExtractionCanceled
// once the progress callback returns false.
func (p *progressWriter) Write(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.w.Write(b)
	p.event.BytesDone += int64(n)
	if err != nil {
		return n, err
	}
	if p.fn != nil && p.event.BytesDone >= p.next {
		p.next = p.event.BytesDone + p.interval
		if !p.fn(p.event) {
			return n, cache.ErrExtractionCanceled
		}
	}
	return n, nil
}

// report sends the current totals unconditionally.
func (p *progressWriter) report() bool {
	if p.fn == nil {
		return true
	}
	return p.fn(p.event)
}

// retarget points the writer at w for the next member.
func (p *progressWriter) retarget(w io.Writer, member string) {
	p.w = w
	p.event.Member = member
}

// Written returns the number of bytes written so far.
func (p *progressWriter) Written() int64 {
	return p.event.BytesDone
}

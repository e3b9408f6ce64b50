// ABOUTME: Bounded decode worker pool
// ABOUTME: Runs decodes off the caller goroutine with a concurrency limit
package decode

import (
	"context"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"golang.org/x/sync/semaphore"
)

// Pool limits how many payload decodes run at once
type Pool struct {
	dec *PayloadDecoder
	sem *semaphore.Weighted
}

// NewPool creates a pool. workers <= 0 decodes on the caller goroutine.
func NewPool(dec *PayloadDecoder, workers int) *Pool {
	if dec == nil {
		dec = NewPayloadDecoder(nil)
	}
	p := &Pool{dec: dec}
	if workers > 0 {
		p.sem = semaphore.NewWeighted(int64(workers))
	}
	return p
}

type decodeResult struct {
	buf *audio.Buffer
	err error
}

// Decode decodes p, returning early with ctx.Err() if ctx ends first.
// An abandoned decode finishes in the background and releases its slot.
func (p *Pool) Decode(ctx context.Context, payload audio.Payload) (*audio.Buffer, error) {
	if p.sem == nil {
		return p.dec.Decode(ctx, payload)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan decodeResult, 1)
	go func() {
		defer p.sem.Release(1)
		buf, err := p.dec.Decode(ctx, payload)
		done <- decodeResult{buf: buf, err: err}
	}()

	select {
	case r := <-done:
		return r.buf, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

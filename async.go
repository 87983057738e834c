package formdata

import (
	"context"
	"errors"
	"io"
)

// ErrNotReady is returned by an [AsyncReader] that has no data available yet.
// [Body.Next] passes it through unchanged.
var ErrNotReady = errors.New("formdata: source not ready")

// AsyncReader is a byte source that may not have data available when asked.
//
// TryRead must not block. When nothing is available it returns 0 and
// [ErrNotReady] without consuming anything; end of data is reported with
// [io.EOF]. Wait blocks until a subsequent TryRead can make progress or ctx is
// done.
type AsyncReader interface {
	TryRead(p []byte) (int, error)
	Wait(ctx context.Context) error
}

// ChanReader is an [AsyncReader] fed by a channel of byte slices. Closing the
// channel marks the end of data. Slices must not be modified after they have
// been sent.
type ChanReader struct {
	ch      <-chan []byte
	pending []byte
	// have is set once Wait received a slice that TryRead has not seen yet.
	have   bool
	closed bool
}

// NewChanReader returns a [ChanReader] reading from ch.
func NewChanReader(ch <-chan []byte) *ChanReader {
	return &ChanReader{ch: ch}
}

// TryRead copies buffered data into p, receiving from the channel without
// blocking when the buffer is empty.
func (r *ChanReader) TryRead(p []byte) (int, error) {
	for !r.have {
		if r.closed {
			return 0, io.EOF
		}
		select {
		case b, ok := <-r.ch:
			r.accept(b, ok)
		default:
			return 0, ErrNotReady
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	if len(r.pending) == 0 {
		r.have = false
	}
	return n, nil
}

// Wait blocks until the channel delivers data, is closed, or ctx is done.
func (r *ChanReader) Wait(ctx context.Context) error {
	for !r.have && !r.closed {
		select {
		case b, ok := <-r.ch:
			r.accept(b, ok)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *ChanReader) accept(b []byte, ok bool) {
	if !ok {
		r.closed = true
		return
	}
	// Empty slices carry no data and are skipped.
	if len(b) > 0 {
		r.pending = b
		r.have = true
	}
}

package formdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Header names are written in lowercase, the canonical form for HTTP/2 and
// accepted by every multipart parser.
const (
	headerContentType        = "content-type"
	headerContentDisposition = "content-disposition"
)

// maxConsecutiveEmptyReads is the number of (0, nil) reads tolerated from a
// source before giving up, as in bufio.
const maxConsecutiveEmptyReads = 100

type bodyState int

const (
	// stateBoundary: no active source; the next pull starts a part or ends
	// the stream.
	stateBoundary bodyState = iota
	// stateDraining: the active source is being read.
	stateDraining
	stateDone
)

type chunkKind int

const (
	chunkHeader chunkKind = iota
	chunkContent
	chunkTrailer
)

// Body is the streaming encoder of a [Form]. Each pull produces at most one
// boundary and header block or one read's worth of payload, so memory use is
// bounded by the buffer size whatever the size of the parts.
//
// A Body is not restartable and not safe for concurrent use. [Body.Next],
// [Body.Read] and [Body.WriteTo] drive the same state and should not be
// mixed.
type Body struct {
	pending  []*Part
	boundary string
	state    bodyState

	active *Part
	src    io.Reader
	async  AsyncReader
	// field is the name of the part most recently started.
	field string

	buf      []byte
	readSize int
	kind     chunkKind
	// eof records that the active source returned end of data together with
	// its last bytes; readErr likewise for a failure.
	eof     bool
	readErr error
	written int64

	err    error
	closed bool

	// ctx and out serve Read and WriteTo only.
	ctx context.Context
	out []byte

	logger log.Logger
}

func newBody(parts []*Part, boundary string, bufferSize int, logger log.Logger) *Body {
	return &Body{
		pending:  parts,
		boundary: boundary,
		buf:      make([]byte, 0, bufferSize),
		readSize: bufferSize,
		ctx:      context.Background(),
		logger:   logger,
	}
}

// WithContext sets the context [Body.Read] and [Body.WriteTo] use while
// waiting on an [AsyncReader], and returns b.
func (b *Body) WithContext(ctx context.Context) *Body {
	if ctx == nil {
		panic("formdata: nil context")
	}
	b.ctx = ctx
	return b
}

// Next produces the next chunk of the encoded form. The chunk is only valid
// until the following call.
//
// At the end of the stream Next returns [io.EOF], and keeps doing so. When the
// active source is an [AsyncReader] with no data available Next returns
// [ErrNotReady] without changing state; call [Body.Wait] before retrying. Any
// other error is an [*Error], after which the Body is failed and keeps
// returning that error. The one exception is a Body obtained from an already
// consumed [Form], which fails every pull with the bare [ErrFormConsumed].
func (b *Body) Next() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	b.buf = b.buf[:0]
	switch b.state {
	case stateBoundary:
		return b.startPart()
	case stateDraining:
		return b.drain()
	default:
		return nil, io.EOF
	}
}

func (b *Body) startPart() ([]byte, error) {
	if len(b.pending) == 0 {
		b.state = stateDone
		return nil, io.EOF
	}

	p := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]

	b.writeBoundary()
	b.writeHeaders(p)

	b.active = p
	b.field = p.name
	switch p.body.kind {
	case textPayload:
		b.src = strings.NewReader(p.body.text)
	case readerPayload:
		b.src = p.body.r
	case asyncPayload:
		b.async = p.body.ar
	}
	b.state = stateDraining
	b.kind = chunkHeader

	level.Debug(b.logger).Log("msg", "encoding part", "field", p.name, "content_type", p.contentType)
	return b.buf, nil
}

func (b *Body) drain() ([]byte, error) {
	if b.readErr != nil {
		return nil, b.fail(ContentRead, b.readErr)
	}
	if b.eof {
		return b.finishPart()
	}

	p := b.buf[:b.readSize]
	for empties := 1; ; empties++ {
		n, err := b.read(p)
		if n > 0 {
			switch {
			case err == io.EOF:
				b.eof = true
			case err != nil && !b.suspends(err):
				b.readErr = err
			}
			b.written += int64(n)
			b.buf = p[:n]
			b.kind = chunkContent
			return b.buf, nil
		}

		switch {
		case err == io.EOF:
			return b.finishPart()
		case b.suspends(err):
			return nil, err
		case err != nil:
			return nil, b.fail(ContentRead, err)
		}

		if empties >= maxConsecutiveEmptyReads {
			return nil, b.fail(ContentRead, io.ErrNoProgress)
		}
	}
}

func (b *Body) read(p []byte) (int, error) {
	if b.async != nil {
		return b.async.TryRead(p)
	}
	return b.src.Read(p)
}

// suspends reports whether err only means the active source has nothing yet.
// Synchronous sources never suspend, so ErrNotReady from one is a failure.
func (b *Body) suspends(err error) bool {
	return b.async != nil && errors.Is(err, ErrNotReady)
}

func (b *Body) finishPart() ([]byte, error) {
	p := b.active
	b.active, b.src, b.async, b.eof = nil, nil, nil, false
	if err := p.body.close(); err != nil {
		return nil, b.fail(ContentRead, err)
	}

	level.Debug(b.logger).Log("msg", "encoded part", "field", p.name, "bytes", b.written)
	b.written = 0

	b.buf = b.buf[:0]
	b.writeCRLF()
	if len(b.pending) == 0 {
		b.writeFinalBoundary()
		b.writeCRLF()
	}
	b.state = stateBoundary
	b.kind = chunkTrailer
	return b.buf, nil
}

func (b *Body) fail(kind ErrorKind, err error) error {
	b.err = &Error{Kind: kind, Part: b.field, Err: err}
	return b.err
}

// Wait blocks until the active [AsyncReader] can make progress or ctx is
// done. It returns immediately when no asynchronous source is being drained.
func (b *Body) Wait(ctx context.Context) error {
	if b.err != nil || b.async == nil {
		return nil
	}
	return b.async.Wait(ctx)
}

// Read implements [io.Reader] on top of [Body.Next], waiting on the context
// set with [Body.WithContext] whenever an asynchronous source is not ready.
func (b *Body) Read(p []byte) (int, error) {
	for len(b.out) == 0 {
		chunk, err := b.next()
		if err != nil {
			return 0, err
		}
		b.out = chunk
	}

	n := copy(p, b.out)
	b.out = b.out[n:]
	return n, nil
}

// WriteTo implements [io.WriterTo]. A failed write is reported as an
// [*Error] whose kind tells which piece of the form could not be written.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		chunk := b.out
		b.out = nil
		if len(chunk) == 0 {
			var err error
			chunk, err = b.next()
			if err == io.EOF {
				return total, nil
			}
			if err != nil {
				return total, err
			}
		}

		n, err := w.Write(chunk)
		total += int64(n)
		if err == nil && n < len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return total, b.fail(b.writeErrorKind(n), err)
		}
	}
}

// next is Next with ErrNotReady resolved by waiting.
func (b *Body) next() ([]byte, error) {
	for {
		chunk, err := b.Next()
		if !errors.Is(err, ErrNotReady) {
			return chunk, err
		}
		if err := b.Wait(b.ctx); err != nil {
			return nil, err
		}
	}
}

// writeErrorKind classifies a write of the last chunk that stopped after n
// bytes.
func (b *Body) writeErrorKind(n int) ErrorKind {
	switch b.kind {
	case chunkHeader:
		if n < len("--")+len(b.boundary)+len("\r\n") {
			return BoundaryWrite
		}
		return HeaderWrite
	case chunkContent:
		return ContentWrite
	default:
		return BoundaryWrite
	}
}

// Close releases the active source and every pending one, closing those that
// implement [io.Closer]. Pending parts are discarded and no final boundary is
// produced; abandoning a Body this way is not an error.
func (b *Body) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.active != nil {
		errs = append(errs, b.active.body.close())
	}
	for _, p := range b.pending {
		errs = append(errs, p.body.close())
	}
	b.active, b.src, b.async = nil, nil, nil
	b.pending, b.out = nil, nil
	b.state = stateDone

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("formdata: failed to close parts: %w", err)
	}
	return nil
}

func (b *Body) writeCRLF() {
	b.buf = append(b.buf, '\r', '\n')
}

func (b *Body) writeBoundary() {
	b.buf = append(b.buf, '-', '-')
	b.buf = append(b.buf, b.boundary...)
}

func (b *Body) writeFinalBoundary() {
	b.writeBoundary()
	b.buf = append(b.buf, '-', '-')
}

func (b *Body) writeHeaders(p *Part) {
	b.writeCRLF()
	b.buf = append(b.buf, headerContentType...)
	b.buf = append(b.buf, ": "...)
	b.buf = append(b.buf, p.contentType...)
	b.writeCRLF()
	b.buf = append(b.buf, headerContentDisposition...)
	b.buf = append(b.buf, ": "...)
	b.buf = append(b.buf, p.contentDisposition...)
	b.writeCRLF()
	b.writeCRLF()
}

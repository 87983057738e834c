package formdata_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/tomasbasham/formdata"
)

type Person struct {
	Name     string   `form:"name"`
	Age      int      `form:"age,omitempty"`
	Pronouns []string `form:"pronouns"`
}

type User struct {
	Name    string  `form:"name"`
	Age     int     `form:"age,omitempty"`
	Address Address `form:"address"`
}

type Address struct {
	Street string `form:"street"`
	City   string `form:"city"`
	State  string `form:"state"`
	Zip    string `form:"zip"`
}

type Upload struct {
	Title   string    `form:"title"`
	Avatar  io.Reader `form:"avatar,type=image/png,filename=me.png"`
	Payload []byte    `form:"payload,omitempty"`
	Private string    `form:"-"`
	secret  string
}

// Buffered holds a reader by value.
type Buffered struct {
	Log bytes.Buffer `form:"log,filename=build.log"`
}

type MyDate time.Time

func (d MyDate) MarshalForm() (string, error) {
	return time.Time(d).Format("2006.01.02"), nil
}

type failingMarshaler struct{}

func (failingMarshaler) MarshalForm() (string, error) {
	return "", errors.New("cannot marshal")
}

// namedReader looks like a file to the encoder.
type namedReader struct {
	*strings.Reader
	name string
}

func (r namedReader) Name() string { return r.name }

// collect drains body through Next and returns the concatenated chunks.
func collect(t *testing.T, body *formdata.Body) []byte {
	t.Helper()

	var out []byte
	for {
		chunk, err := body.Next()
		if errors.Is(err, formdata.ErrNotReady) {
			if err := body.Wait(context.Background()); err != nil {
				t.Fatalf("wait: %v", err)
			}
			continue
		}
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, chunk...)
	}
}

type parsedPart struct {
	Name        string
	Filename    string
	ContentType string
	Content     string
}

// parse decodes an encoded form with the standard library parser.
func parse(t *testing.T, contentType string, data []byte) []parsedPart {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("invalid content type %q: %v", contentType, err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("unexpected media type %q", mediaType)
	}

	// A form without parts encodes to nothing at all.
	if len(data) == 0 {
		return nil
	}

	var parts []parsedPart
	r := multipart.NewReader(bytes.NewReader(data), params["boundary"])
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			return parts
		}
		if err != nil {
			t.Fatalf("failed to parse part: %v", err)
		}
		content, err := io.ReadAll(p)
		if err != nil {
			t.Fatalf("failed to read part: %v", err)
		}
		parts = append(parts, parsedPart{
			Name:        p.FormName(),
			Filename:    p.FileName(),
			ContentType: p.Header.Get("Content-Type"),
			Content:     string(content),
		})
	}
}

// stepReader is an AsyncReader that alternates between not being ready and
// handing out at most step bytes.
type stepReader struct {
	data  []byte
	step  int
	ready bool
	waits int
}

func (r *stepReader) TryRead(p []byte) (int, error) {
	if !r.ready {
		return 0, formdata.ErrNotReady
	}
	r.ready = false
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p[:min(len(p), r.step)], r.data)
	r.data = r.data[n:]
	return n, nil
}

func (r *stepReader) Wait(ctx context.Context) error {
	r.waits++
	r.ready = true
	return ctx.Err()
}

// closeTracker records whether it was closed.
type closeTracker struct {
	io.Reader
	closed bool
	err    error
}

func (c *closeTracker) Close() error {
	c.closed = true
	return c.err
}

// errReader fails after returning its data.
type errReader struct {
	data []byte
	err  error
}

func (r *errReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// notReadyReader is a plain io.Reader that misuses ErrNotReady.
type notReadyReader struct {
	data []byte
}

func (r *notReadyReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, formdata.ErrNotReady
}

// emptyReader never makes progress.
type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, nil }

// limitWriter accepts limit bytes and then fails.
type limitWriter struct {
	bytes.Buffer
	limit int
}

var errWriteLimit = errors.New("write limit reached")

func (w *limitWriter) Write(p []byte) (int, error) {
	room := w.limit - w.Len()
	if room >= len(p) {
		return w.Buffer.Write(p)
	}
	n, _ := w.Buffer.Write(p[:max(room, 0)])
	return n, errWriteLimit
}

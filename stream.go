package formdata

import (
	"io"
)

// Encoder writes multipart/form-data documents to an [io.Writer].
type Encoder struct {
	w        io.Writer
	boundary string
	opts     []Option
}

// NewEncoder creates a new [Encoder] that writes to w. The options configure
// the forms built by [Encoder.Encode]. The boundary is chosen once, here, so
// that the content type is known before anything is written.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	boundary := NewForm(opts...).Boundary()
	return &Encoder{
		w:        w,
		boundary: boundary,
		opts:     append(opts[:len(opts):len(opts)], WithBoundary(boundary)),
	}
}

// FormDataContentType returns the Content-Type header value of the documents
// written by e.
func (e *Encoder) FormDataContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// Encode encodes the fields of v, as described by [Form.Encode], and streams
// the document to the underlying [io.Writer].
func (e *Encoder) Encode(v interface{}) error {
	f := NewForm(e.opts...)
	if err := f.Encode(v); err != nil {
		f.Body().Close()
		return err
	}

	body := f.Body()
	defer body.Close()
	_, err := body.WriteTo(e.w)
	return err
}

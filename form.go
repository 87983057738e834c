package formdata

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
)

const defaultBufferSize = 2048

// Option configures a [Form].
type Option func(*Form)

// WithBoundaryGenerator sets the policy used to pick the form boundary. The
// default is [RandomAlphanumeric].
func WithBoundaryGenerator(g BoundaryGenerator) Option {
	return func(f *Form) {
		f.generator = g
	}
}

// WithBoundary fixes the form boundary.
func WithBoundary(boundary string) Option {
	return WithBoundaryGenerator(FixedBoundary(boundary))
}

// WithFs sets the filesystem [Form.AddFile] opens paths on. The default is
// the operating system filesystem.
func WithFs(fs afero.Fs) Option {
	return func(f *Form) {
		f.fs = fs
	}
}

// WithLogger sets the logger used by the form and the [Body] created from it.
func WithLogger(logger log.Logger) Option {
	return func(f *Form) {
		f.logger = logger
	}
}

// WithBufferSize sets the size of the buffer a [Body] reads payloads into,
// which bounds the size of every payload chunk.
func WithBufferSize(n int) Option {
	return func(f *Form) {
		if n > 0 {
			f.bufferSize = n
		}
	}
}

// Form is an ordered collection of parts sharing one boundary. Parts are
// encoded in the order they were added; repeated names are allowed.
//
// A Form takes ownership of every reader added to it. Readers implementing
// [io.Closer] are closed by the [Body] once drained, or by [Body.Close].
type Form struct {
	parts    []*Part
	boundary string
	consumed bool

	generator  BoundaryGenerator
	fs         afero.Fs
	logger     log.Logger
	bufferSize int
}

// NewForm returns an empty form whose boundary is chosen once, here, by the
// configured [BoundaryGenerator].
func NewForm(opts ...Option) *Form {
	f := &Form{
		generator:  RandomAlphanumeric{},
		fs:         afero.NewOsFs(),
		logger:     log.NewNopLogger(),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.boundary = f.generator.GenerateBoundary()
	return f
}

// Boundary returns the boundary delimiting the parts of f.
func (f *Form) Boundary() string {
	return f.boundary
}

// ContentType returns the value of the Content-Type header for a request
// carrying f.
func (f *Form) ContentType() string {
	return "multipart/form-data; boundary=" + f.boundary
}

// Parts returns the parts added so far.
func (f *Form) Parts() []*Part {
	return append([]*Part(nil), f.parts...)
}

// ContentLength returns the encoded length of f when every part declares its
// size. Declared sizes are advisory, so the result may not match the bytes
// eventually produced if a source changes in the meantime.
func (f *Form) ContentLength() (int64, bool) {
	if len(f.parts) == 0 {
		return 0, true
	}

	var total int64
	for _, p := range f.parts {
		size, ok := p.Size()
		if !ok {
			return -1, false
		}
		total += p.headerLen(f.boundary) + size + int64(len("\r\n"))
	}
	total += int64(len("--") + len(f.boundary) + len("--\r\n"))
	return total, true
}

// AddText adds a text field with content type text/plain.
func (f *Form) AddText(name, text string) {
	f.push(newPart(textSource(text), name, "", "", false))
}

// AddReader adds a field whose content is read from r, with content type
// application/octet-stream.
func (f *Form) AddReader(name string, r io.Reader) {
	f.push(newPart(readerSource(r, -1), name, "", "", false))
}

// AddAsyncReader adds a field whose content is read from r, with content type
// application/octet-stream.
func (f *Form) AddAsyncReader(name string, r AsyncReader) {
	f.push(newPart(asyncSource(r), name, "", "", false))
}

// AddReaderFile is like [Form.AddReader] but also declares a filename.
func (f *Form) AddReaderFile(name string, r io.Reader, filename string) {
	f.push(newPart(readerSource(r, -1), name, "", filename, true))
}

// AddReaderFileWithMIME is like [Form.AddReaderFile] with an explicit content
// type.
func (f *Form) AddReaderFileWithMIME(name string, r io.Reader, filename, mimeType string) {
	f.push(newPart(readerSource(r, -1), name, mimeType, filename, true))
}

// AddAsyncReaderFile is like [Form.AddAsyncReader] but also declares a
// filename.
func (f *Form) AddAsyncReaderFile(name string, r AsyncReader, filename string) {
	f.push(newPart(asyncSource(r), name, "", filename, true))
}

// AddAsyncReaderFileWithMIME is like [Form.AddAsyncReaderFile] with an
// explicit content type.
func (f *Form) AddAsyncReaderFileWithMIME(name string, r AsyncReader, filename, mimeType string) {
	f.push(newPart(asyncSource(r), name, mimeType, filename, true))
}

// AddFile opens the file at path and adds it as a file field. The content
// type is derived from the file extension, falling back to
// application/octet-stream, and the filename is the last element of path.
//
// Directories are rejected with an error wrapping [ErrDirectory]. No part is
// added when an error is returned.
func (f *Form) AddFile(name, path string) error {
	return f.addFile(name, path, "")
}

// AddFileWithMIME is like [Form.AddFile] but uses mimeType instead of guessing
// it from the extension.
func (f *Form) AddFileWithMIME(name, path, mimeType string) error {
	return f.addFile(name, path, mimeType)
}

func (f *Form) addFile(name, path, mimeType string) error {
	f.checkConsumed()

	file, err := f.fs.Open(path)
	if err != nil {
		return fmt.Errorf("formdata: failed to open file for field %q: %w", name, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("formdata: failed to stat file for field %q: %w", name, err)
	}

	// A directory has no content to upload.
	if info.IsDir() {
		file.Close()
		return fmt.Errorf("formdata: invalid path %q for field %q: %w", path, name, ErrDirectory)
	}

	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
	}

	p := newPart(readerSource(file, info.Size()), name, mimeType, filepath.Base(path), true)
	f.push(p)

	level.Debug(f.logger).Log(
		"msg", "added file part",
		"field", name,
		"path", path,
		"size", humanize.Bytes(uint64(info.Size())),
		"content_type", p.contentType,
	)
	return nil
}

func (f *Form) push(p *Part) {
	f.checkConsumed()
	f.parts = append(f.parts, p)
}

func (f *Form) checkConsumed() {
	if f.consumed {
		panic("formdata: part added to a consumed form")
	}
}

// Body converts f into a streaming [Body], transferring ownership of every
// part. The form must not be used afterwards; a second call returns a Body
// that fails with [ErrFormConsumed].
func (f *Form) Body() *Body {
	if f.consumed {
		return &Body{state: stateDone, err: ErrFormConsumed, logger: f.logger}
	}

	f.consumed = true
	parts := f.parts
	f.parts = nil
	return newBody(parts, f.boundary, f.bufferSize, f.logger)
}

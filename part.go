package formdata

import (
	"io"
	"strings"
)

const (
	textPlain        = "text/plain"
	applicationOctet = "application/octet-stream"
)

type payloadKind int

const (
	textPayload payloadKind = iota
	readerPayload
	asyncPayload
)

// payload is the source of a part's content. Exactly one of text, r or ar is
// meaningful, selected by kind.
type payload struct {
	kind payloadKind
	text string
	r    io.Reader
	ar   AsyncReader
	// size is the declared length in bytes, or -1 when unknown.
	size int64
}

func textSource(s string) payload {
	return payload{kind: textPayload, text: s, size: int64(len(s))}
}

func readerSource(r io.Reader, size int64) payload {
	return payload{kind: readerPayload, r: r, size: size}
}

func asyncSource(r AsyncReader) payload {
	return payload{kind: asyncPayload, ar: r, size: -1}
}

func (p payload) defaultContentType() string {
	if p.kind == textPayload {
		return textPlain
	}
	return applicationOctet
}

// close releases the underlying source if it holds any resources.
func (p payload) close() error {
	var c io.Closer
	switch p.kind {
	case readerPayload:
		c, _ = p.r.(io.Closer)
	case asyncPayload:
		c, _ = p.ar.(io.Closer)
	}
	if c == nil {
		return nil
	}
	return c.Close()
}

// Part is a single field of a [Form].
type Part struct {
	name               string
	contentType        string
	contentDisposition string
	body               payload
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// newPart builds the part headers once. A filename parameter is only added
// when file is set, so an empty filename is still reported as a file.
func newPart(body payload, name, mimeType, filename string, file bool) *Part {
	var b strings.Builder
	b.WriteString(`form-data; name="`)
	b.WriteString(escapeQuotes(name))
	b.WriteByte('"')
	if file {
		b.WriteString(`; filename="`)
		b.WriteString(escapeQuotes(filename))
		b.WriteByte('"')
	}

	if mimeType == "" {
		mimeType = body.defaultContentType()
	}

	return &Part{
		name:               name,
		contentType:        mimeType,
		contentDisposition: b.String(),
		body:               body,
	}
}

// Name returns the field name of the part.
func (p *Part) Name() string { return p.name }

// ContentType returns the value of the part's content-type header.
func (p *Part) ContentType() string { return p.contentType }

// ContentDisposition returns the value of the part's content-disposition
// header.
func (p *Part) ContentDisposition() string { return p.contentDisposition }

// Size returns the declared length of the payload. It is advisory: the
// encoded part contains whatever the source yields until end of data.
func (p *Part) Size() (int64, bool) {
	return p.body.size, p.body.size >= 0
}

// headerLen is the number of bytes written before the payload of p.
func (p *Part) headerLen(boundary string) int64 {
	n := len("--") + len(boundary) + len("\r\n")
	n += len(headerContentType) + len(": ") + len(p.contentType) + len("\r\n")
	n += len(headerContentDisposition) + len(": ") + len(p.contentDisposition) + len("\r\n")
	n += len("\r\n")
	return int64(n)
}

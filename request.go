package formdata

import (
	"context"
	"net/http"
)

// SetBody consumes f and attaches it to req: the Content-Type header is set
// and the request body becomes a [Body] bound to the request context. The
// body cannot be replayed, so GetBody is cleared.
func (f *Form) SetBody(req *http.Request) {
	contentType := f.ContentType()
	body := f.Body().WithContext(req.Context())

	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Content-Type", contentType)
	req.Body = body
	req.GetBody = nil
	// The body is streamed; a zero length with a non-nil body means unknown
	// to the client transport.
	req.ContentLength = 0
}

// NewRequest returns a request for method and url carrying f as its body. f is
// consumed.
func (f *Form) NewRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	f.SetBody(req)
	return req, nil
}

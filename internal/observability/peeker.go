package observability

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// FailedResponse is one buffered non-2xx HTTP response, kept around so a
// sink can attach it to the CaptureError it reports for the send failure.
type FailedResponse struct {
	StatusCode int
	Body       string
}

// Peeker buffers non-2xx HTTP responses seen by a RoundTripper so the sink
// that issued the request can surface the server's error body alongside
// its own retry/backoff logging, without every sink re-implementing
// response draining and restoration.
type Peeker struct {
	sync.Mutex
	responses []FailedResponse
}

// Read returns the buffered responses and clears the buffer.
func (p *Peeker) Read() []FailedResponse {
	p.Lock()
	defer p.Unlock()

	responses := p.responses
	p.responses = nil

	return responses
}

// Peek inspects resp and, if it's a non-2xx response, buffers its body for
// later Read while leaving the body intact for the caller to consume.
func (p *Peeker) Peek(_ *http.Request, resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(resp.Body)

		p.Lock()
		p.responses = append(p.responses, FailedResponse{
			StatusCode: resp.StatusCode,
			Body:       string(buf),
		})
		p.Unlock()

		resp.Body = io.NopCloser(bytes.NewReader(buf))
	}
}

// WrapHTTP implements httplayers.HTTPWrapper, so a Peeker can be added
// directly to an httplayers.Concat chain around a sink's HTTP client.
func (p *Peeker) WrapHTTP(send func(*http.Request) (*http.Response, error)) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		resp, err := send(req)
		if err != nil {
			return resp, err
		}
		p.Peek(req, resp)
		return resp, nil
	}
}

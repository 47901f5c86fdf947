package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/version"
)

// ProgressFunc is invoked once per received chunk with the chunk size
// and the response Content-Length, or -1 when the server did not
// expose one. Callbacks run synchronously on the fetching goroutine
// and must tolerate many small chunks.
type ProgressFunc func(chunkLen int, contentLength int64)

// Options tune one request.
type Options struct {
	// Headers are attached to the request verbatim.
	Headers map[string]string
	// Accept is set when Headers does not already carry one.
	Accept string
	// Timeout bounds the connect and read phases. Zero means no bound.
	Timeout time.Duration
	// Progress, when non-nil, observes artifact chunks as they arrive.
	Progress ProgressFunc
}

// progressReader forwards reads and reports each chunk.
type progressReader struct {
	inner         io.Reader
	contentLength int64
	progress      ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 && r.progress != nil {
		r.progress(n, r.contentLength)
	}

	return n, err
}

// newClient builds a client for a single call. Proxy settings are
// taken from HTTP_PROXY/HTTPS_PROXY at request time, no transport
// state outlives the call.
func newClient(timeout time.Duration) *http.Client {
	//nolint:exhaustruct // Default transport values are fine beyond the proxy.
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		Timeout:   timeout,
	}
}

// Get performs an HTTP GET and returns the status code and the full
// response body. Intended for manifest-sized responses.
func Get(ctx context.Context, url string, opts Options) (int, []byte, error) {
	var body []byte

	sink := func(r io.Reader) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}

		body = data

		return nil
	}

	status, err := run(ctx, url, opts, sink, true)

	return status, body, err
}

// Download performs an HTTP GET streaming the body into w. Unlike
// Get, any non-2xx status is an error: artifact endpoints have no
// meaningful non-success payload.
func Download(ctx context.Context, url string, opts Options, w io.Writer) error {
	sink := func(r io.Reader) error {
		_, err := io.Copy(w, r)
		return err
	}

	_, err := run(ctx, url, opts, sink, false)

	return err
}

// run owns request construction and the body-close discipline shared
// by Get and Download. anyStatus lets manifest callers interpret the
// status themselves.
func run(ctx context.Context, url string, opts Options, sink func(io.Reader) error, anyStatus bool) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, errs.Wrap(errs.KindNetwork, "build request", err)
	}

	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	if opts.Accept != "" && req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", opts.Accept)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	response, err := newClient(opts.Timeout).Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.KindNetwork, "request "+url, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if !anyStatus && (response.StatusCode < 200 || response.StatusCode > 299) {
		return response.StatusCode,
			errs.WithStatus(response.StatusCode, "download request failed for "+url)
	}

	reader := &progressReader{
		inner:         response.Body,
		contentLength: response.ContentLength,
		progress:      opts.Progress,
	}

	if err = sink(reader); err != nil {
		return response.StatusCode, errs.Wrap(errs.KindNetwork, "read response body", err)
	}

	return response.StatusCode, nil
}

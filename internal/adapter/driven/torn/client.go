// Package torn holds everything specific to the upstream game API: the HTTP
// client, URL builders and tolerant decoders that turn loosely shaped JSON
// into domain records.
package torn

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
)

// DefaultBaseURL is the public upstream API root.
const DefaultBaseURL = "https://api.torn.com"

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration
	// Cache enables an in-memory RFC 7234 cache under the client. Responses
	// are keyed by full URL, so it is only safe when the key travels in the
	// query string.
	Cache bool
	// Base overrides the underlying transport; nil means http.DefaultTransport.
	Base http.RoundTripper
}

// NewHTTPClient builds the client the broker issues upstream calls with.
func NewHTTPClient(opts ClientOptions) *http.Client {
	transport := opts.Base
	if transport == nil {
		transport = http.DefaultTransport
	}

	if opts.Cache {
		cached := httpcache.NewMemoryCacheTransport()
		cached.Transport = transport
		transport = cached
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}

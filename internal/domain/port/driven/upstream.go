package driven

import "net/http"

// HTTPDoer is the transport the broker issues upstream calls through.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

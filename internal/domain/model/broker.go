package model

import (
	"net/http"
	"strconv"
	"strings"
)

// UserContext is the caller identity handed in by the authentication layer.
// APIKey is a raw, unencrypted key supplied by a development session; it is
// empty in normal operation.
type UserContext struct {
	PlayerID  int64
	FactionID int64
	APIKey    string
}

// BrokerRequest is one upstream call routed through the credential pool.
type BrokerRequest struct {
	URL       string
	Scope     Scope
	User      *UserContext
	FactionID *int64
}

// Attempt records what happened to one candidate credential. It never holds
// secret material.
type Attempt struct {
	CredentialID *int64
	Source       KeySource
	Outcome      string
}

// String renders the attempt as source:id:outcome.
func (a Attempt) String() string {
	id := "session"
	if a.CredentialID != nil {
		id = strconv.FormatInt(*a.CredentialID, 10)
	}
	return string(a.Source) + ":" + id + ":" + a.Outcome
}

// UpstreamResponse is the definitive response the broker settled on.
type UpstreamResponse struct {
	StatusCode   int
	Header       http.Header
	Body         []byte
	CredentialID *int64
	Source       KeySource
	Attempts     []Attempt
}

// OK reports whether the status code is 2xx.
func (r *UpstreamResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Debug headers describing which credential served a response.
const (
	HeaderKeyUsed     = "X-Broker-Key-Used"
	HeaderKeySource   = "X-Broker-Key-Source"
	HeaderKeyAttempts = "X-Broker-Key-Attempts"
)

// DebugHeaders renders the attempt trace as response headers.
func (r *UpstreamResponse) DebugHeaders() http.Header {
	h := make(http.Header)
	used := "session"
	if r.CredentialID != nil {
		used = strconv.FormatInt(*r.CredentialID, 10)
	}
	h.Set(HeaderKeyUsed, used)
	h.Set(HeaderKeySource, string(r.Source))
	h.Set(HeaderKeyAttempts, FormatAttempts(r.Attempts))
	return h
}

// FormatAttempts joins attempts with "|".
func FormatAttempts(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, "|")
}

// CandidateProbe is a diagnostic view of one candidate in the key pipeline.
// Nil booleans mean the check could not be performed.
type CandidateProbe struct {
	Source       KeySource `json:"source"`
	CredentialID *int64    `json:"id"`
	CanUse       *bool     `json:"can_use"`
	DecryptOK    *bool     `json:"decrypt_ok"`
	Note         string    `json:"note,omitempty"`
}

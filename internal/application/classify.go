package application

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
)

// Outcome is the broker's verdict on one upstream response.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response without an error body.
	OutcomeSuccess Outcome = iota
	// OutcomeTransient is a rate or quota rejection; the next credential may
	// succeed.
	OutcomeTransient
	// OutcomeDefinitive is any other failure. It is returned to the caller
	// unchanged.
	OutcomeDefinitive
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	default:
		return "definitive"
	}
}

// transientAPICodes are upstream error codes caused by the key rather than
// the request: too many requests, temporary key pause and key overloaded.
var transientAPICodes = map[int]bool{5: true, 23: true, 25: true}

// Classify decides what the broker does with a response and returns the
// attempt label to record for it.
func Classify(status int, body []byte) (Outcome, string) {
	apiErr := parseAPIError(body)

	if apiErr != nil && transientAPICodes[apiErr.Code] {
		return OutcomeTransient, "api_" + strconv.Itoa(apiErr.Code)
	}
	if status == http.StatusTooManyRequests {
		return OutcomeTransient, "http_429"
	}
	if status < 200 || status > 299 {
		return OutcomeDefinitive, "http_" + strconv.Itoa(status)
	}
	if apiErr != nil {
		return OutcomeDefinitive, "api_" + strconv.Itoa(apiErr.Code)
	}
	return OutcomeSuccess, "ok"
}

// parseAPIError extracts {"error": {"code": n, "error": "msg"}} from a body.
// Bodies that are not a JSON object, or carry no error object, yield nil.
func parseAPIError(body []byte) *UpstreamAPIError {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil
	}

	var envelope struct {
		Error *struct {
			Code    *int   `json:"code"`
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil || envelope.Error.Code == nil {
		return nil
	}

	msg := envelope.Error.Error
	if msg == "" {
		msg = envelope.Error.Message
	}
	return &UpstreamAPIError{Code: *envelope.Error.Code, Message: msg}
}

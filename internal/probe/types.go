package probe

import (
	"errors"
	"net/http"
	"strings"
)

type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
)

// ParseMethod accepts GET and POST; anything else falls back to GET.
func ParseMethod(s string) Method {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case http.MethodPost:
		return MethodPost
	default:
		return MethodGet
	}
}

// Request is one scheduled URL. It is not modified after dispatch.
type Request struct {
	URL    string
	Method Method
}

// Result is a positive finding. It only exists when at least one cache
// signal was found.
type Result struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Method  string            `json:"method"`
}

var (
	ErrDNSResolution    = errors.New("dns resolution failed")
	ErrTransport        = errors.New("request failed")
	ErrRequestTimeout   = errors.New("request timed out")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

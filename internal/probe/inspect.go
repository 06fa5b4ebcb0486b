package probe

import (
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	BodyIndicatorHeader = "Body-Cache-Indicator"
	BodyIndicatorValue  = "Detected"
)

var bodyMarkers = []string{"served from cache", "X-Cache: HIT"}

// inspectHeaders records every configured header present on the response
// under its configured name. Only the first value is kept.
func inspectHeaders(h http.Header, names []string) map[string]string {
	found := make(map[string]string)
	for _, name := range names {
		values, ok := h[http.CanonicalHeaderKey(name)]
		if !ok || len(values) == 0 {
			continue
		}
		found[name] = values[0]
	}
	return found
}

// body markers are only searched in the first maxBodyBytes of a response
const maxBodyBytes = 4 << 20

// readBody decodes at most maxBodyBytes of the body to UTF-8 using the
// response charset. Decoding falls back to the raw bytes.
func readBody(resp *http.Response) (string, error) {
	body := io.LimitReader(resp.Body, maxBodyBytes)
	r, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		r = body
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func hasBodyMarker(body string) bool {
	for _, m := range bodyMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

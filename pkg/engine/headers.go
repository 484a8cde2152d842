package engine

import (
	"mime"
	"sort"
	"strconv"
	"strings"

	"github.com/entrhq/phantomas/pkg/types"
)

// HeadersFromMap converts a header map into a list sorted by name so
// notifications are deterministic.
func HeadersFromMap(m map[string]string) []types.Header {
	headers := make([]types.Header, 0, len(m))
	for name, value := range m {
		headers = append(headers, types.Header{Name: name, Value: value})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	return headers
}

// ContentType strips parameters from a Content-Type header value.
func ContentType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	}
	return mediaType
}

// ContentLength parses a Content-Length header value, returning -1 when it
// is absent or invalid.
func ContentLength(header string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// FillResponse sets the response fields derived from headers.
func FillResponse(res *types.Resource) {
	res.ContentType = ContentType(res.Header("Content-Type"))
	if res.BodySize <= 0 {
		res.BodySize = ContentLength(res.Header("Content-Length"))
	}
	if res.IsRedirect() {
		res.RedirectURL = res.Header("Location")
	}
}

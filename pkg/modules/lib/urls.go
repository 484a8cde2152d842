package lib

import (
	"net/url"
	"path"
	"strings"
)

// URLsLibrary is the name modules require the URL classifier by.
const URLsLibrary = "urls"

// AssetType is the kind of asset a response carries.
type AssetType string

const (
	AssetHTML  AssetType = "html"
	AssetCSS   AssetType = "css"
	AssetJS    AssetType = "js"
	AssetImage AssetType = "image"
	AssetJSON  AssetType = "json"
	AssetFont  AssetType = "webfont"
	AssetOther AssetType = "other"
)

var extensionTypes = map[string]AssetType{
	".html":  AssetHTML,
	".htm":   AssetHTML,
	".css":   AssetCSS,
	".js":    AssetJS,
	".mjs":   AssetJS,
	".json":  AssetJSON,
	".png":   AssetImage,
	".jpg":   AssetImage,
	".jpeg":  AssetImage,
	".gif":   AssetImage,
	".webp":  AssetImage,
	".svg":   AssetImage,
	".ico":   AssetImage,
	".avif":  AssetImage,
	".woff":  AssetFont,
	".woff2": AssetFont,
	".ttf":   AssetFont,
	".otf":   AssetFont,
	".eot":   AssetFont,
}

// URLClassifier groups request URLs by domain and asset type.
type URLClassifier struct{}

// NewURLClassifier creates a classifier.
func NewURLClassifier() *URLClassifier {
	return &URLClassifier{}
}

// Host returns the lowercase host of raw without port, or "" when raw is
// not an absolute URL.
func (c *URLClassifier) Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SameDomain reports whether raw belongs to the same registrable domain as
// base. Subdomains of base count as the same domain.
func (c *URLClassifier) SameDomain(base, raw string) bool {
	b, h := c.Host(base), c.Host(raw)
	if b == "" || h == "" {
		return false
	}
	b = strings.TrimPrefix(b, "www.")
	return h == b || strings.HasSuffix(h, "."+b) || strings.TrimPrefix(h, "www.") == b
}

// IsData reports whether raw is an inline data: URL.
func (c *URLClassifier) IsData(raw string) bool {
	return strings.HasPrefix(strings.ToLower(raw), "data:")
}

// AssetType classifies a response by MIME type, falling back to the URL
// extension.
func (c *URLClassifier) AssetType(contentType, raw string) AssetType {
	ct := strings.ToLower(contentType)
	switch {
	case ct == "text/html" || ct == "application/xhtml+xml":
		return AssetHTML
	case ct == "text/css":
		return AssetCSS
	case strings.Contains(ct, "javascript") || ct == "text/ecmascript":
		return AssetJS
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		return AssetJSON
	case strings.HasPrefix(ct, "image/"):
		return AssetImage
	case strings.HasPrefix(ct, "font/") || strings.Contains(ct, "font"):
		return AssetFont
	}

	if u, err := url.Parse(raw); err == nil {
		if t, ok := extensionTypes[strings.ToLower(path.Ext(u.Path))]; ok {
			return t
		}
	}
	return AssetOther
}

package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRequire(t *testing.T) {
	r := DefaultRegistry()

	v, err := r.Require(HTMLLibrary)
	require.NoError(t, err)
	assert.IsType(t, &HTMLInspector{}, v)

	v, err = r.Require(URLsLibrary)
	require.NoError(t, err)
	assert.IsType(t, &URLClassifier{}, v)

	_, err = r.Require("jquery")
	assert.ErrorIs(t, err, ErrLibraryNotFound)

	assert.Equal(t, []string{"html", "urls"}, r.Names())
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	r.Register("answer", func() any { return 42 })

	v, err := r.Require("answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestHTMLInspect(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title> Example Domain </title>
  <style>body { color: red }</style>
  <script src="/app.js"></script>
  <script>var x = 1;</script>
</head>
<body>
  <!-- banner -->
  <div style="display:none"><p>Hello <b>world</b></p></div>
  <img src="a.png" alt="a"><img src="b.png">
  <iframe src="/frame"></iframe>
  <input type="hidden" name="token">
</body>
</html>`

	stats, err := NewHTMLInspector().Inspect(page)
	require.NoError(t, err)

	assert.Equal(t, "Example Domain", stats.Title)
	assert.Equal(t, 1, stats.Iframes)
	assert.Equal(t, 2, stats.Images)
	assert.Equal(t, 1, stats.ImagesNoAlt)
	assert.Equal(t, 1, stats.InlineScripts)
	assert.Equal(t, 2, stats.InlineStyles)
	assert.Equal(t, 1, stats.Comments)
	assert.Equal(t, len(" banner "), stats.CommentsSize)
	assert.Equal(t, 1, stats.HiddenInputs)
	assert.Equal(t, 2, stats.ElementsByTag["script"])
	// html > body > div > p > b
	assert.Equal(t, 5, stats.MaxDepth)
	// html head title style script script body div p b img img iframe input
	assert.Equal(t, 14, stats.Elements)
}

func TestHTMLInspectEmpty(t *testing.T) {
	stats, err := NewHTMLInspector().Inspect("")
	require.NoError(t, err)

	// the parser always synthesizes html, head and body
	assert.Equal(t, 3, stats.Elements)
	assert.Empty(t, stats.Title)
}

func TestURLClassifierSameDomain(t *testing.T) {
	c := NewURLClassifier()

	tests := []struct {
		name string
		base string
		raw  string
		want bool
	}{
		{name: "same host", base: "http://example.com/", raw: "http://example.com/a.js", want: true},
		{name: "www prefix", base: "http://www.example.com/", raw: "http://example.com/a.js", want: true},
		{name: "subdomain", base: "http://example.com/", raw: "http://static.example.com/a.css", want: true},
		{name: "third party", base: "http://example.com/", raw: "http://cdn.other.net/lib.js", want: false},
		{name: "suffix trap", base: "http://example.com/", raw: "http://badexample.com/", want: false},
		{name: "data url", base: "http://example.com/", raw: "data:image/png;base64,AAA", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SameDomain(tt.base, tt.raw))
		})
	}
}

func TestURLClassifierAssetType(t *testing.T) {
	c := NewURLClassifier()

	tests := []struct {
		contentType string
		url         string
		want        AssetType
	}{
		{contentType: "text/html", url: "http://e.com/", want: AssetHTML},
		{contentType: "text/css", url: "http://e.com/x", want: AssetCSS},
		{contentType: "application/javascript", url: "http://e.com/x", want: AssetJS},
		{contentType: "application/ld+json", url: "http://e.com/x", want: AssetJSON},
		{contentType: "image/png", url: "http://e.com/x", want: AssetImage},
		{contentType: "font/woff2", url: "http://e.com/x", want: AssetFont},
		{contentType: "", url: "http://e.com/app.js?v=1", want: AssetJS},
		{contentType: "application/octet-stream", url: "http://e.com/logo.SVG", want: AssetImage},
		{contentType: "", url: "http://e.com/download", want: AssetOther},
	}

	for _, tt := range tests {
		t.Run(tt.contentType+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, c.AssetType(tt.contentType, tt.url))
		})
	}
}

func TestURLClassifierIsData(t *testing.T) {
	c := NewURLClassifier()
	assert.True(t, c.IsData("DATA:text/plain,hi"))
	assert.False(t, c.IsData("http://example.com"))
	assert.Equal(t, "example.com", c.Host("http://Example.com:8080/x"))
}

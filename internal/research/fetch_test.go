package research

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParagraphs(t *testing.T) {
	html := `<html><head><title>ignored</title></head><body>
<nav>menu</nav>
<p>First   paragraph
   spans lines.</p>
<div><p>Second <b>bold</b>	paragraph.</p></div>
<p></p>
</body></html>`

	text, err := ExtractParagraphs(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "First paragraph spans lines. Second bold paragraph.", text)
}

func TestExtractParagraphs_NoParagraphs(t *testing.T) {
	text, err := ExtractParagraphs(strings.NewReader("<html><body><div>only div</div></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "robo-test", r.Header.Get("User-Agent"))
		io.WriteString(w, "<p>hello</p><p>world</p>")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testResearchConfig(srv.URL))

	text, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

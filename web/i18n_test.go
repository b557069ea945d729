package web_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wgoossens/trackside/web"
)

func TestTranslatorFallbackChain(t *testing.T) {
	tr := web.NewTranslator("nl")

	assert.NotEqual(t, "discover.title", tr.T("nl", "discover.title"))
	assert.NotEqual(t, "discover.title", tr.T("en", "discover.title"))

	// An unknown language falls back to the default, an unknown key to itself.
	assert.Equal(t, tr.T("nl", "discover.title"), tr.T("fr", "discover.title"))
	assert.Equal(t, "no.such.key", tr.T("nl", "no.such.key"))
}

func TestLanguageMiddleware(t *testing.T) {
	var got string
	handler := web.LanguageMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = web.GetLanguageFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, "nl", got)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/?lang=en", nil))
	assert.Equal(t, "en", got)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "en", got)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/?lang=de", nil))
	assert.Equal(t, "nl", got)
}

func TestGetLanguageWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "nl", web.GetLanguageFromContext(req.Context()))
}

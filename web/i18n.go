package web

import (
	"context"
	"embed"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
)

//go:embed translations/*.json
var translationsFS embed.FS

type langContextKeyType struct{}

var langContextKey = langContextKeyType{}

// Translator handles internationalization for the web application
type Translator struct {
	translations map[string]map[string]string // lang -> key -> value
	defaultLang  string
	mu           sync.RWMutex
}

// NewTranslator creates a new Translator with translations loaded from embedded files
func NewTranslator(defaultLang string) *Translator {
	t := &Translator{
		translations: make(map[string]map[string]string),
		defaultLang:  defaultLang,
	}
	t.loadTranslations()
	return t
}

func (t *Translator) loadTranslations() {
	entries, err := translationsFS.ReadDir("translations")
	if err != nil {
		log.Printf("Failed to read translations directory: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(entry.Name(), ".json")
		data, err := translationsFS.ReadFile("translations/" + entry.Name())
		if err != nil {
			log.Printf("Failed to read translation file %s: %v", entry.Name(), err)
			continue
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			log.Printf("Failed to parse translation file %s: %v", entry.Name(), err)
			continue
		}

		t.mu.Lock()
		t.translations[lang] = translations
		t.mu.Unlock()
	}
}

// T translates a key to the specified language, falling back to default language then key
func (t *Translator) T(lang, key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if langMap, ok := t.translations[lang]; ok {
		if val, ok := langMap[key]; ok {
			return val
		}
	}

	if lang != t.defaultLang {
		if langMap, ok := t.translations[t.defaultLang]; ok {
			if val, ok := langMap[key]; ok {
				return val
			}
		}
	}

	return key
}

// LanguageMiddleware resolves the request language from the lang query
// parameter or the Accept-Language header and stores it on the context.
func LanguageMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := r.URL.Query().Get("lang")
		if lang == "" {
			accept := r.Header.Get("Accept-Language")
			if strings.HasPrefix(accept, "en") {
				lang = "en"
			}
		}
		if lang != "nl" && lang != "en" {
			lang = defaultLang
		}
		ctx := context.WithValue(r.Context(), langContextKey, lang)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLanguageFromContext returns the language resolved by LanguageMiddleware.
func GetLanguageFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langContextKey).(string); ok {
		return lang
	}
	return defaultLang
}

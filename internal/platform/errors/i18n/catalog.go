// Package i18n renders operator-facing descriptions of error codes.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"

	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// BaseLocale is the catalog used when no better match exists.
const BaseLocale = "en-US"

// Catalog maps error codes to message templates for a specific locale.
// Templates read metadata keys such as .player and .time_index.
type Catalog struct {
	locale   string
	messages map[platformerrors.Code]string
}

var (
	catalogsMu sync.RWMutex
	// catalogs holds built-in and registered catalogs by locale.
	catalogs = map[string]*Catalog{
		enUSCatalog.locale: enUSCatalog,
		ptBRCatalog.locale: ptBRCatalog,
	}
)

// GetCatalog returns the catalog that best matches locale, falling back to
// en-US.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = BaseLocale
	}
	if c, ok := lookupCatalog(requested); ok {
		return c
	}

	tag, err := language.Parse(requested)
	if err != nil {
		c, _ := lookupCatalog(BaseLocale)
		return c
	}
	supported, tags := registeredLocales()
	_, index, confidence := language.NewMatcher(tags).Match(tag)
	if confidence == language.No {
		c, _ := lookupCatalog(BaseLocale)
		return c
	}
	c, _ := lookupCatalog(supported[index])
	return c
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template with the given metadata.
// Falls back to the code itself if no template is found, and to the raw
// template when it fails to parse or execute.
func (c *Catalog) Format(code platformerrors.Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return string(code)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// RegisterCatalog registers a catalog for the given locale, replacing any
// existing one.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[locale] = cat
}

// NewCatalog creates a catalog with the given locale and messages.
func NewCatalog(locale string, messages map[platformerrors.Code]string) *Catalog {
	cloned := make(map[platformerrors.Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{
		locale:   locale,
		messages: cloned,
	}
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

// registeredLocales returns the parseable locales with the base locale first,
// so the matcher falls back to it.
func registeredLocales() ([]string, []language.Tag) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	locales := []string{BaseLocale}
	tags := []language.Tag{language.MustParse(BaseLocale)}
	for locale := range catalogs {
		if locale == BaseLocale {
			continue
		}
		tag, err := language.Parse(locale)
		if err != nil {
			continue
		}
		locales = append(locales, locale)
		tags = append(tags, tag)
	}
	return locales, tags
}

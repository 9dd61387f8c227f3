// Package i18n renders user-facing messages for domain error codes.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// BaseLocale is used when no requested locale matches.
const BaseLocale = "en-US"

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

// Catalog maps error codes to message templates for one locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

var (
	catalogsMu sync.RWMutex
	catalogs   = map[string]*Catalog{
		enUSCatalog.locale: enUSCatalog,
		ptBRCatalog.locale: ptBRCatalog,
	}
	matcherOnce sync.Once
	matcher     language.Matcher
	matchable   []string
)

// GetCatalog returns the best catalog for an Accept-Language style locale
// list, falling back to en-US.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = BaseLocale
	}
	if c, ok := lookupCatalog(requested); ok {
		return c
	}
	if c, ok := lookupCatalog(match(requested)); ok {
		return c
	}
	c, _ := lookupCatalog(BaseLocale)
	return c
}

func match(requested string) string {
	matcherOnce.Do(func() {
		matchable = []string{BaseLocale, ptBRCatalog.locale}
		tags := make([]language.Tag, 0, len(matchable))
		for _, l := range matchable {
			tags = append(tags, language.MustParse(l))
		}
		matcher = language.NewMatcher(tags)
	})
	_, idx := language.MatchStrings(matcher, requested)
	if idx < 0 || idx >= len(matchable) {
		return BaseLocale
	}
	return matchable[idx]
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the template for code with metadata. Unknown codes render as
// the code itself; broken templates render verbatim.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return code
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	t, err := template.New("msg").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// RegisterCatalog installs or replaces the catalog for locale. Exact-match
// lookups see it immediately; negotiated matching only covers built-in locales.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[locale] = cat
}

// NewCatalog creates a catalog with a private copy of messages.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	cloned := make(map[Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{locale: locale, messages: cloned}
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

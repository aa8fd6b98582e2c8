package stream

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Status keys used outside the tool mapping
const (
	StatusThinking     = "thinking"
	StatusBroadening   = "broadening"
	StatusAvailability = "checking_availability"
	StatusComparing    = "comparing"
	StatusWorking      = "working"
	StatusChooseOption = "choose_variant"
)

//go:embed status.yaml
var defaultCatalogYAML []byte

// Catalog is the immutable status copy, per locale
type Catalog struct {
	DefaultLocale string                       `yaml:"default_locale"`
	Tools         map[string]string            `yaml:"tools"`
	Messages      map[string]map[string]string `yaml:"messages"`
}

// ParseCatalog decodes a YAML status catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse status catalog: %w", err)
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = "en"
	}
	if _, ok := c.Messages[c.DefaultLocale]; !ok {
		return nil, fmt.Errorf("status catalog has no %q messages", c.DefaultLocale)
	}
	return &c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(defaultCatalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Text returns the copy for key in locale. Culture codes such as "de-CH" use
// their language; unknown locales and keys fall back to the default locale,
// and finally to the key itself.
func (c *Catalog) Text(locale, key string) string {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if text, ok := c.Messages[lang][key]; ok {
		return text
	}
	if text, ok := c.Messages[c.DefaultLocale][key]; ok {
		return text
	}
	return key
}

// ToolKey maps a tool name to its status key
func (c *Catalog) ToolKey(tool string) string {
	if key, ok := c.Tools[tool]; ok {
		return key
	}
	return StatusWorking
}

package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/ca-srg/searchchat/internal/config"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// fallbackSearchLanguage is used for countries without a search_language
const fallbackSearchLanguage = "en"

// Catalog lists the supported countries and summary languages
type Catalog struct {
	Countries        []Country  `yaml:"countries" json:"countries"`
	SummaryLanguages []Language `yaml:"summary_languages" json:"summaryLanguages"`
}

// Country is a search location
type Country struct {
	// Code is the two-letter code sent to the backend
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	// SearchLanguage is the language the backend searches in for this country
	SearchLanguage string `yaml:"search_language" json:"searchLanguage"`
}

// Language is a summary language
type Language struct {
	// Code is the two-letter code sent to the backend
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	// Tag is the BCP 47 tag when Code is not one (e.g. jp -> ja)
	Tag        string `yaml:"tag,omitempty" json:"tag,omitempty"`
	NativeName string `yaml:"native_name,omitempty" json:"nativeName,omitempty"`
}

// Default returns the built-in catalog
func Default() (*Catalog, error) {
	c, err := Parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("invalid built-in catalog: %w", err)
	}
	return c, nil
}

// Load returns the catalog in path, or the built-in one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadConfig(path)
}

// LoadConfig loads and validates a catalog from a YAML file
func LoadConfig(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	normalize(&c)

	if err := validateCatalog(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	applyDefaults(&c)

	return &c, nil
}

// normalize lowercases codes and NFC-normalizes display names
func normalize(c *Catalog) {
	for i := range c.Countries {
		country := &c.Countries[i]
		country.Code = strings.ToLower(strings.TrimSpace(country.Code))
		country.SearchLanguage = strings.ToLower(strings.TrimSpace(country.SearchLanguage))
		country.Name = norm.NFC.String(strings.TrimSpace(country.Name))
	}
	for i := range c.SummaryLanguages {
		lang := &c.SummaryLanguages[i]
		lang.Code = strings.ToLower(strings.TrimSpace(lang.Code))
		lang.Tag = strings.TrimSpace(lang.Tag)
		lang.Name = norm.NFC.String(strings.TrimSpace(lang.Name))
		lang.NativeName = norm.NFC.String(strings.TrimSpace(lang.NativeName))
	}
}

// validateCatalog validates the catalog structure
func validateCatalog(c *Catalog) error {
	if len(c.Countries) == 0 {
		return fmt.Errorf("countries is required and must contain at least one entry")
	}
	if len(c.SummaryLanguages) == 0 {
		return fmt.Errorf("summary_languages is required and must contain at least one entry")
	}

	seen := make(map[string]bool)
	for i, country := range c.Countries {
		if !config.IsTwoLetterCode(country.Code) {
			return fmt.Errorf("countries[%d].code %q must be a two-letter code", i, country.Code)
		}
		if seen[country.Code] {
			return fmt.Errorf("countries[%d].code %q is duplicated", i, country.Code)
		}
		seen[country.Code] = true
		if country.SearchLanguage != "" && !config.IsTwoLetterCode(country.SearchLanguage) {
			return fmt.Errorf("countries[%d].search_language %q must be a two-letter code", i, country.SearchLanguage)
		}
	}

	seen = make(map[string]bool)
	for i, lang := range c.SummaryLanguages {
		if !config.IsTwoLetterCode(lang.Code) {
			return fmt.Errorf("summary_languages[%d].code %q must be a two-letter code", i, lang.Code)
		}
		if seen[lang.Code] {
			return fmt.Errorf("summary_languages[%d].code %q is duplicated", i, lang.Code)
		}
		seen[lang.Code] = true
		if lang.Tag != "" {
			if _, err := language.Parse(lang.Tag); err != nil {
				return fmt.Errorf("summary_languages[%d].tag %q is invalid: %w", i, lang.Tag, err)
			}
		}
	}

	return nil
}

// applyDefaults fills missing names from CLDR data
func applyDefaults(c *Catalog) {
	for i := range c.Countries {
		country := &c.Countries[i]
		if country.SearchLanguage == "" {
			country.SearchLanguage = fallbackSearchLanguage
		}
		if country.Name == "" {
			country.Name = regionName(country.Code)
		}
	}

	for i := range c.SummaryLanguages {
		lang := &c.SummaryLanguages[i]
		tag, ok := lang.tag()
		if lang.Name == "" {
			lang.Name = strings.ToUpper(lang.Code)
			if ok {
				if name := display.English.Tags().Name(tag); name != "" {
					lang.Name = name
				}
			}
		}
		if lang.NativeName == "" && ok {
			lang.NativeName = display.Self.Name(tag)
		}
	}
}

func (l Language) tag() (language.Tag, bool) {
	raw := l.Tag
	if raw == "" {
		raw = l.Code
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

func regionName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return strings.ToUpper(code)
}

// HasCountry reports whether code is a supported country
func (c *Catalog) HasCountry(code string) bool {
	_, ok := c.Country(code)
	return ok
}

// HasLanguage reports whether code is a supported summary language
func (c *Catalog) HasLanguage(code string) bool {
	_, ok := c.Language(code)
	return ok
}

// Country looks up a country by code
func (c *Catalog) Country(code string) (Country, bool) {
	code = strings.ToLower(code)
	for _, country := range c.Countries {
		if country.Code == code {
			return country, true
		}
	}
	return Country{}, false
}

// Language looks up a summary language by code
func (c *Catalog) Language(code string) (Language, bool) {
	code = strings.ToLower(code)
	for _, lang := range c.SummaryLanguages {
		if lang.Code == code {
			return lang, true
		}
	}
	return Language{}, false
}

// SearchLanguageFor returns the search language for a country code
func (c *Catalog) SearchLanguageFor(code string) string {
	if country, ok := c.Country(code); ok {
		return country.SearchLanguage
	}
	return fallbackSearchLanguage
}

// CountryName returns the display name for a country code, or the code itself
func (c *Catalog) CountryName(code string) string {
	if country, ok := c.Country(code); ok {
		return country.Name
	}
	return code
}

// LanguageName returns the display name for a language code, or the code itself
func (c *Catalog) LanguageName(code string) string {
	if lang, ok := c.Language(code); ok {
		return lang.Name
	}
	return code
}

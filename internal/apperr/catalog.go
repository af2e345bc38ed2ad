package apperr

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Family groups error codes in the message catalog.
type Family string

const (
	// FamilyApplication holds client-addressable errors.
	FamilyApplication Family = "APP_EXCEPTION"
	// FamilySystem holds operator-addressable errors.
	FamilySystem Family = "SYSTEM_EXCEPTION"
)

// Default messages used when a code is missing from the catalog.
const (
	defaultApplicationMessage = "Application error"
	defaultSystemMessage      = "System error occurred!"
)

//go:embed messages.yaml
var catalogYAML []byte

// Catalog maps family -> error code -> message template.
type Catalog map[Family]map[string]string

var (
	catalogOnce sync.Once
	catalog     Catalog
)

// Messages returns the process-wide catalog, parsing the embedded YAML on
// first use. A broken catalog is logged and treated as empty so that error
// construction keeps working with default messages.
func Messages() Catalog {
	catalogOnce.Do(func() {
		c, err := ParseCatalog(catalogYAML)
		if err != nil {
			log.Error().Err(err).Msg("failed to load message catalog")
			c = Catalog{}
		}
		catalog = c
	})
	return catalog
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(b []byte) (Catalog, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	out := make(Catalog, len(raw))
	for fam, codes := range raw {
		out[Family(fam)] = codes
	}
	return out, nil
}

// Lookup returns the template registered for code in family.
func (c Catalog) Lookup(fam Family, code string) (string, bool) {
	codes, ok := c[fam]
	if !ok {
		return "", false
	}
	tmpl, ok := codes[code]
	return tmpl, ok && tmpl != ""
}

// Resolve returns the formatted message for code, or the family default.
func (c Catalog) Resolve(fam Family, code string, params map[string]any) string {
	tmpl, ok := c.Lookup(fam, code)
	if !ok {
		return defaultMessage(fam)
	}
	if msg := Format(tmpl, params); msg != "" {
		return msg
	}
	return defaultMessage(fam)
}

// Format replaces {name} placeholders in tmpl with values from params.
// Unknown placeholders are left untouched.
func Format(tmpl string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func defaultMessage(fam Family) string {
	if fam == FamilySystem {
		return defaultSystemMessage
	}
	return defaultApplicationMessage
}

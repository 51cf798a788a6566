// Package render personalises campaign templates with lead merge fields
// using the Liquid template language.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// Renderer renders subject and body templates for one lead. It caches
// parsed templates, so a campaign's template is parsed once per process.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Renderer{engine: engine}
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// FieldName turns a merge field key into a Liquid identifier:
// "First Name" becomes "First_Name".
func FieldName(key string) string {
	return strings.Trim(nonIdent.ReplaceAllString(strings.TrimSpace(key), "_"), "_")
}

// Bindings exposes each merge field as written, lower-cased and upper-cased,
// so {{ name }}, {{ Name }} and {{ NAME }} all resolve. Keys that are not
// identifiers are normalised with FieldName first. The lead address is "email".
func Bindings(lead model.Lead) map[string]interface{} {
	b := make(map[string]interface{}, len(lead.Fields)*3+2)
	for k, v := range lead.Fields {
		name := FieldName(k)
		if name == "" {
			continue
		}
		b[name] = v
		b[strings.ToLower(name)] = v
		b[strings.ToUpper(name)] = v
	}
	b["email"] = lead.Email
	b["EMAIL"] = lead.Email
	return b
}

// Validate reports a template parse error without rendering anything.
func (r *Renderer) Validate(source string) error {
	_, err := r.parse(source)
	return err
}

// Render renders source for the given lead.
func (r *Renderer) Render(source string, lead model.Lead) (string, error) {
	if source == "" {
		return "", nil
	}
	tpl, err := r.parse(source)
	if err != nil {
		return "", err
	}
	out, renderErr := tpl.RenderString(Bindings(lead))
	if renderErr != nil {
		return "", fmt.Errorf("render template: %w", renderErr)
	}
	return out, nil
}

func (r *Renderer) parse(source string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	r.cache.Store(source, tpl)
	return tpl, nil
}

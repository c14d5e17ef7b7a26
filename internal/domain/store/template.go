package store

import (
	"github.com/storegen/backend/internal/domain/shared"
)

// PageType identifies the kind of page a template produces
type PageType string

const (
	PageTypeHome     PageType = "home"
	PageTypeCategory PageType = "category"
	PageTypeProduct  PageType = "product"
	PageTypeListing  PageType = "listing"
)

// Layout is the base of a template: a set of named blocks holding
// html/template source. Page templates override blocks by name, so
// inheritance is plain map composition rather than a type hierarchy.
type Layout struct {
	Blocks map[string]string `json:"blocks"`
}

// Component is a reusable template fragment rendered independently
// and memoized by (id, input hash) within a job.
type Component struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// PageTemplate describes one page type: which layout blocks it
// overrides and which components it places.
type PageTemplate struct {
	Type       PageType          `json:"type"`
	Overrides  map[string]string `json:"overrides,omitempty"`
	Components []string          `json:"components,omitempty"`
}

// Template is a named, versioned storefront definition. It is immutable
// once loaded and cached by id+version.
type Template struct {
	ID         string               `json:"id"`
	Version    string               `json:"version"`
	Name       string               `json:"name"`
	Layout     Layout               `json:"layout"`
	Components map[string]Component `json:"components"`
	Pages      []PageTemplate       `json:"pages"`
}

// CacheKey returns the id+version cache key for the template
func (t *Template) CacheKey() string {
	return t.ID + "@" + t.Version
}

// Validate checks the template for structural problems before any
// rendering begins. Validation is fail-fast: a single missing component
// or unknown block aborts the whole render.
func (t *Template) Validate() error {
	if t.ID == "" {
		return shared.NewDomainError(shared.ErrCodeTemplateValidation, "Template id is required")
	}
	if len(t.Layout.Blocks) == 0 {
		return shared.NewDomainError(shared.ErrCodeTemplateValidation, "Template layout has no blocks")
	}
	if len(t.Pages) == 0 {
		return shared.NewDomainError(shared.ErrCodeTemplateValidation, "Template defines no pages")
	}
	seen := make(map[PageType]bool, len(t.Pages))
	for _, page := range t.Pages {
		if seen[page.Type] {
			return shared.NewDomainError(shared.ErrCodeTemplateValidation, "Duplicate page template: "+string(page.Type))
		}
		seen[page.Type] = true
		for block := range page.Overrides {
			if _, ok := t.Layout.Blocks[block]; !ok {
				return shared.NewDomainError(shared.ErrCodeTemplateValidation,
					"Page "+string(page.Type)+" overrides unknown block: "+block)
			}
		}
		for _, componentID := range page.Components {
			if _, ok := t.Components[componentID]; !ok {
				return shared.NewDomainError(shared.ErrCodeTemplateValidation,
					"Page "+string(page.Type)+" references missing component: "+componentID)
			}
		}
	}
	if !seen[PageTypeHome] {
		return shared.NewDomainError(shared.ErrCodeTemplateValidation, "Template must define a home page")
	}
	return nil
}

// PageTemplateFor returns the page template for the given type, or nil
func (t *Template) PageTemplateFor(pt PageType) *PageTemplate {
	for i := range t.Pages {
		if t.Pages[i].Type == pt {
			return &t.Pages[i]
		}
	}
	return nil
}

// ResolveBlocks composes the layout blocks with a page's overrides.
// The result is a fresh map; the template itself is never mutated.
func (t *Template) ResolveBlocks(page *PageTemplate) map[string]string {
	blocks := make(map[string]string, len(t.Layout.Blocks))
	for name, src := range t.Layout.Blocks {
		blocks[name] = src
	}
	if page != nil {
		for name, src := range page.Overrides {
			blocks[name] = src
		}
	}
	return blocks
}

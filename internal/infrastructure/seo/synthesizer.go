// Package seo derives structured data, meta tags, sitemap, and robots
// directives from a rendered store structure. The synthesis is a pure
// transform: no network calls, and deterministic for the same input.
package seo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
	"go.uber.org/zap"
)

const (
	defaultTitleMaxLen       = 60
	defaultDescriptionMaxLen = 160
)

// Config bounds the synthesized meta tags
type Config struct {
	StoreName         string
	TitleMaxLen       int
	DescriptionMaxLen int
}

func (c *Config) applyDefaults() {
	if c.TitleMaxLen == 0 {
		c.TitleMaxLen = defaultTitleMaxLen
	}
	if c.DescriptionMaxLen == 0 {
		c.DescriptionMaxLen = defaultDescriptionMaxLen
	}
}

// Synthesizer enriches rendered pages with SEO annotations
type Synthesizer struct {
	logger *zap.Logger
}

// SynthesizerOption configures the synthesizer
type SynthesizerOption func(*Synthesizer)

// WithLogger sets the logger for the synthesizer
func WithLogger(logger *zap.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// NewSynthesizer creates an SEO synthesizer
func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Annotate enriches the structure in place: per-page structured data
// and meta tags, plus the store-level sitemap and robots policy.
// Running it twice on the same input yields byte-identical output.
func (s *Synthesizer) Annotate(structure *store.StoreStructure, products []catalog.EnhancedProduct, cfg Config) error {
	if structure == nil {
		return shared.NewDomainError(shared.ErrCodeValidation, "store structure is required")
	}
	cfg.applyDefaults()

	byID := make(map[uuid.UUID]*catalog.EnhancedProduct, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for i := range structure.Pages {
		page := &structure.Pages[i]

		var product *catalog.EnhancedProduct
		if page.ProductID != nil {
			product = byID[*page.ProductID]
		}

		page.Meta = s.buildMeta(page, product, structure.BaseURL, cfg)
		page.StructuredData = s.buildStructuredData(page, product, structure.BaseURL, cfg)
	}

	structure.Sitemap = buildSitemap(structure)
	structure.Robots = buildRobots(structure.BaseURL)

	s.logger.Debug("SEO synthesis complete",
		zap.Int("pages", len(structure.Pages)),
		zap.String("template", structure.TemplateID),
	)
	return nil
}

func (s *Synthesizer) buildMeta(page *store.Page, product *catalog.EnhancedProduct, baseURL string, cfg Config) *store.PageMeta {
	title := page.Title
	if cfg.StoreName != "" && page.Type != store.PageTypeHome {
		title = page.Title + " | " + cfg.StoreName
	}
	title = clamp(title, cfg.TitleMaxLen)

	description := pageDescription(page, product, cfg.StoreName)
	description = clamp(description, cfg.DescriptionMaxLen)

	canonical := absoluteURL(baseURL, page.Path)

	social := map[string]string{
		"og:title":       title,
		"og:description": description,
		"og:type":        openGraphType(page.Type),
		"twitter:card":   "summary_large_image",
	}
	if canonical != "" {
		social["og:url"] = canonical
	}
	if product != nil {
		if img := product.PrimaryImage(); img != nil {
			social["og:image"] = img.URL
		}
	}

	return &store.PageMeta{
		Title:       title,
		Description: description,
		Canonical:   canonical,
		Social:      social,
	}
}

// buildStructuredData assembles the JSON-LD blocks for one page:
// organization on the home page, breadcrumbs on category and product
// pages, and the product shape on product pages.
func (s *Synthesizer) buildStructuredData(page *store.Page, product *catalog.EnhancedProduct, baseURL string, cfg Config) []json.RawMessage {
	var blocks []json.RawMessage

	if page.Type == store.PageTypeHome {
		blocks = append(blocks, marshalLD(organizationLD{
			Context: schemaContext,
			Type:    "Organization",
			Name:    cfg.StoreName,
			URL:     absoluteURL(baseURL, "/"),
		}))
	}

	if product != nil {
		if crumb := breadcrumbLDFor(product, baseURL); crumb != nil {
			blocks = append(blocks, marshalLD(crumb))
		}
		blocks = append(blocks, marshalLD(productLDFor(product, absoluteURL(baseURL, page.Path))))
	}

	return blocks
}

func pageDescription(page *store.Page, product *catalog.EnhancedProduct, storeName string) string {
	if product != nil && product.Description != "" {
		return product.Description
	}
	switch page.Type {
	case store.PageTypeHome:
		if storeName != "" {
			return fmt.Sprintf("Shop the %s catalog.", storeName)
		}
		return "Shop our catalog."
	default:
		return fmt.Sprintf("Browse %s.", page.Title)
	}
}

const schemaContext = "https://schema.org"

type organizationLD struct {
	Context string `json:"@context"`
	Type    string `json:"@type"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
}

type productLD struct {
	Context     string   `json:"@context"`
	Type        string   `json:"@type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Image       []string `json:"image,omitempty"`
	Brand       *brandLD `json:"brand,omitempty"`
	Offers      offerLD  `json:"offers"`
}

type brandLD struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

type offerLD struct {
	Type          string `json:"@type"`
	Price         string `json:"price"`
	PriceCurrency string `json:"priceCurrency"`
	URL           string `json:"url,omitempty"`
}

type breadcrumbLD struct {
	Context string       `json:"@context"`
	Type    string       `json:"@type"`
	Items   []crumbentry `json:"itemListElement"`
}

type crumbentry struct {
	Type     string `json:"@type"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	Item     string `json:"item,omitempty"`
}

func productLDFor(product *catalog.EnhancedProduct, pageURL string) productLD {
	ld := productLD{
		Context:     schemaContext,
		Type:        "Product",
		Name:        product.Name,
		Description: product.Description,
		Offers: offerLD{
			Type:          "Offer",
			Price:         product.EffectivePrice.StringFixed(2),
			PriceCurrency: product.Currency,
			URL:           pageURL,
		},
	}
	for _, asset := range product.Assets {
		if asset.Kind == catalog.MediaKindImage {
			ld.Image = append(ld.Image, asset.URL)
		}
	}
	if product.Brand != nil {
		ld.Brand = &brandLD{Type: "Brand", Name: product.Brand.Name}
	}
	return ld
}

func breadcrumbLDFor(product *catalog.EnhancedProduct, baseURL string) *breadcrumbLD {
	if len(product.CategoryPath) == 0 {
		return nil
	}
	crumb := &breadcrumbLD{Context: schemaContext, Type: "BreadcrumbList"}
	crumb.Items = append(crumb.Items, crumbentry{
		Type:     "ListItem",
		Position: 1,
		Name:     "Home",
		Item:     absoluteURL(baseURL, "/"),
	})
	slugs := make([]string, 0, len(product.CategoryPath))
	for i, segment := range product.CategoryPath {
		slugs = append(slugs, segment.Slug)
		crumb.Items = append(crumb.Items, crumbentry{
			Type:     "ListItem",
			Position: i + 2,
			Name:     segment.Name,
			Item:     absoluteURL(baseURL, "/category/"+strings.Join(slugs, "/")),
		})
	}
	return crumb
}

func marshalLD(v any) json.RawMessage {
	// Struct marshaling has a fixed field order, which is what keeps
	// the synthesized blocks byte-identical between runs.
	data, _ := json.Marshal(v)
	return data
}

// buildSitemap emits the sitemap XML with one entry per page, ordered
// by path for stable output.
func buildSitemap(structure *store.StoreStructure) string {
	paths := make([]string, 0, len(structure.Pages))
	for i := range structure.Pages {
		paths = append(paths, structure.Pages[i].Path)
	}
	sort.Strings(paths)

	lastMod := structure.GeneratedAt.UTC().Format("2006-01-02")

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, path := range paths {
		b.WriteString("  <url>\n")
		b.WriteString("    <loc>" + xmlEscape(absoluteURL(structure.BaseURL, path)) + "</loc>\n")
		b.WriteString("    <lastmod>" + lastMod + "</lastmod>\n")
		b.WriteString("  </url>\n")
	}
	b.WriteString("</urlset>\n")
	return b.String()
}

func buildRobots(baseURL string) string {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	if baseURL != "" {
		b.WriteString("Sitemap: " + strings.TrimSuffix(baseURL, "/") + "/sitemap.xml\n")
	}
	return b.String()
}

func openGraphType(t store.PageType) string {
	if t == store.PageTypeProduct {
		return "product"
	}
	return "website"
}

func absoluteURL(baseURL, path string) string {
	if baseURL == "" {
		return path
	}
	return strings.TrimSuffix(baseURL, "/") + path
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}

// clamp truncates s to at most max runes, appending an ellipsis when
// truncation happened. max <= 1 falls back to a hard cut.
func clamp(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 1 {
		return string(runes[:max])
	}
	return strings.TrimRight(string(runes[:max-1]), " ") + "…"
}

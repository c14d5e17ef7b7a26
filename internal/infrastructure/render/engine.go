// Package render expands storefront templates against aggregated
// catalog data into a page tree.
package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

const (
	featuredProductCount = 8
	relatedProductCount  = 4
	componentCacheTTL    = 10 * time.Minute
)

// Engine renders a named template against a product snapshot into a
// StoreStructure. Components are rendered independently and memoized by
// (component id, input hash) within a render pass; when a cache layer
// is attached, memoized components are shared across jobs too.
type Engine struct {
	templates TemplateStore
	cache     *cache.TieredCache
	logger    *zap.Logger

	mu     sync.RWMutex
	parsed map[string]*template.Template

	componentRenders int64
	componentMemoHits int64
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithCache attaches the shared cache layer for cross-job component
// memoization.
func WithCache(c *cache.TieredCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger for the engine
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a render engine backed by the given template store
func NewEngine(templates TemplateStore, opts ...EngineOption) *Engine {
	e := &Engine{
		templates: templates,
		logger:    zap.NewNop(),
		parsed:    make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request carries the inputs of one render pass
type Request struct {
	JobID      uuid.UUID
	TemplateID string
	StoreName  string
	BaseURL    string
	Products   []catalog.EnhancedProduct
}

// StoreData is the store-level view model available to every block
type StoreData struct {
	Name    string
	BaseURL string
}

// PageData is the per-page view model bound into layout blocks
type PageData struct {
	Store    StoreData
	Title    string
	Products []catalog.EnhancedProduct
	Product  *catalog.EnhancedProduct
	Category *catalog.CategorySegment
	Related  []catalog.EnhancedProduct
}

// Stats reports cumulative component render counters
type Stats struct {
	ComponentRenders  int64
	ComponentMemoHits int64
}

// Stats returns the cumulative component render counters
func (e *Engine) Stats() Stats {
	return Stats{
		ComponentRenders:  atomic.LoadInt64(&e.componentRenders),
		ComponentMemoHits: atomic.LoadInt64(&e.componentMemoHits),
	}
}

// Render loads and validates the template, then renders the home,
// listing, category, and product pages. Validation is fail-fast: no
// partial structure is ever produced.
func (e *Engine) Render(ctx context.Context, req *Request) (*store.StoreStructure, error) {
	started := time.Now()

	tmpl, err := e.templates.Load(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if err := e.parseAll(tmpl); err != nil {
		return nil, err
	}

	pass := &renderPass{
		engine:    e,
		ctx:       ctx,
		tmpl:      tmpl,
		storeData: StoreData{Name: req.StoreName, BaseURL: req.BaseURL},
		memo:      make(map[string]template.HTML),
	}

	structure := store.NewStoreStructure(req.JobID, tmpl.ID, tmpl.Version)
	structure.BaseURL = req.BaseURL

	if err := pass.buildPages(structure, req.Products); err != nil {
		return nil, err
	}

	e.logger.Info("Render complete",
		zap.String("template", tmpl.CacheKey()),
		zap.Int("pages", len(structure.Pages)),
		zap.Int("assets", len(structure.Assets)),
		zap.Duration("duration", time.Since(started)),
	)
	return structure, nil
}

// parseAll pre-parses every block, override, and component source so a
// malformed template fails before any page is rendered.
func (e *Engine) parseAll(t *store.Template) error {
	var sources []string
	for _, src := range t.Layout.Blocks {
		sources = append(sources, src)
	}
	for _, page := range t.Pages {
		for _, src := range page.Overrides {
			sources = append(sources, src)
		}
	}
	for _, comp := range t.Components {
		sources = append(sources, comp.Source)
	}
	for _, src := range sources {
		if _, err := e.parse(src); err != nil {
			return shared.NewDomainError(shared.ErrCodeTemplateValidation,
				fmt.Sprintf("Template %s has a malformed source: %v", t.CacheKey(), err))
		}
	}
	return nil
}

// parse returns the parsed form of a template source, cached by content
// hash. Parsed templates are cloned before use so each render pass can
// bind its own component function.
func (e *Engine) parse(source string) (*template.Template, error) {
	key := hashString(source)

	e.mu.RLock()
	t, ok := e.parsed[key]
	e.mu.RUnlock()
	if ok {
		return t, nil
	}

	funcs := baseFuncMap()
	funcs["component"] = func(string, interface{}) (template.HTML, error) {
		return "", fmt.Errorf("component called outside a render pass")
	}
	t, err := template.New(key).Funcs(funcs).Parse(source)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.parsed[key] = t
	e.mu.Unlock()
	return t, nil
}

type renderPass struct {
	engine    *Engine
	ctx       context.Context
	tmpl      *store.Template
	storeData StoreData
	memo      map[string]template.HTML
}

func (p *renderPass) buildPages(structure *store.StoreStructure, products []catalog.EnhancedProduct) error {
	featured := products
	if len(featured) > featuredProductCount {
		featured = featured[:featuredProductCount]
	}

	categories := distinctLeafCategories(products)

	// Home page
	home := store.Page{
		ID:    "home",
		Type:  store.PageTypeHome,
		Path:  "/",
		Title: p.storeData.Name,
	}
	home.RelatedPageIDs = append(home.RelatedPageIDs, "listing")
	for _, c := range categories {
		home.RelatedPageIDs = append(home.RelatedPageIDs, "category:"+c.Slug)
	}
	if err := p.renderPage(structure, &home, PageData{
		Store:    p.storeData,
		Title:    p.storeData.Name,
		Products: featured,
	}, featured); err != nil {
		return err
	}

	// Listing page
	listing := store.Page{
		ID:    "listing",
		Type:  store.PageTypeListing,
		Path:  "/products",
		Title: "All products",
	}
	for i := range products {
		listing.RelatedPageIDs = append(listing.RelatedPageIDs, "product:"+products[i].Slug)
	}
	if err := p.renderPage(structure, &listing, PageData{
		Store:    p.storeData,
		Title:    "All products",
		Products: products,
	}, products); err != nil {
		return err
	}

	// Category pages
	if p.tmpl.PageTemplateFor(store.PageTypeCategory) != nil {
		for i := range categories {
			cat := categories[i]
			inCategory := productsInCategory(products, cat.ID)
			page := store.Page{
				ID:    "category:" + cat.Slug,
				Type:  store.PageTypeCategory,
				Path:  "/category/" + cat.Slug,
				Title: cat.Name,
			}
			for j := range inCategory {
				page.RelatedPageIDs = append(page.RelatedPageIDs, "product:"+inCategory[j].Slug)
			}
			if err := p.renderPage(structure, &page, PageData{
				Store:    p.storeData,
				Title:    cat.Name,
				Category: &cat,
				Products: inCategory,
			}, inCategory); err != nil {
				return err
			}
		}
	}

	// Product pages
	if p.tmpl.PageTemplateFor(store.PageTypeProduct) != nil {
		for i := range products {
			product := products[i]
			related := relatedProducts(products, i)
			page := store.Page{
				ID:        "product:" + product.Slug,
				Type:      store.PageTypeProduct,
				Path:      "/products/" + product.Slug,
				Title:     product.Name,
				ProductID: &product.ID,
			}
			for j := range related {
				page.RelatedPageIDs = append(page.RelatedPageIDs, "product:"+related[j].Slug)
			}
			if leaf := leafCategory(&product); leaf != nil {
				page.RelatedPageIDs = append(page.RelatedPageIDs, "category:"+leaf.Slug)
			}
			bound := append(append([]catalog.EnhancedProduct{}, product), related...)
			if err := p.renderPage(structure, &page, PageData{
				Store:   p.storeData,
				Title:   product.Name,
				Product: &product,
				Related: related,
			}, bound); err != nil {
				return err
			}
		}
	}

	return nil
}

// renderPage resolves the page's blocks, executes them, registers the
// referenced assets, and appends the page to the structure.
func (p *renderPass) renderPage(structure *store.StoreStructure, page *store.Page, data PageData, bound []catalog.EnhancedProduct) error {
	pageTmpl := p.tmpl.PageTemplateFor(page.Type)
	blocks := p.tmpl.ResolveBlocks(pageTmpl)

	rendered := make(map[string]string, len(blocks))
	for name, src := range blocks {
		html, err := p.execute(src, data)
		if err != nil {
			return shared.NewDomainError(shared.ErrCodeTemplateValidation,
				fmt.Sprintf("Rendering block %q of page %s failed: %v", name, page.ID, err))
		}
		rendered[name] = html
	}
	page.Blocks = rendered

	for i := range bound {
		for _, ref := range bound[i].Assets {
			asset := store.NewAsset(ref.URL, assetKind(ref.Kind), ref.AltText)
			structure.AddAsset(asset)
			page.AssetIDs = appendUnique(page.AssetIDs, asset.ID)
		}
	}

	structure.AddPage(*page)
	return nil
}

func (p *renderPass) execute(source string, data interface{}) (string, error) {
	base, err := p.engine.parse(source)
	if err != nil {
		return "", err
	}
	t, err := base.Clone()
	if err != nil {
		return "", err
	}
	t = t.Funcs(template.FuncMap{"component": p.component})

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// component renders a reusable component, memoized by (id, input hash).
// The same product card appearing on a listing and on a related-products
// rail renders exactly once per pass.
func (p *renderPass) component(id string, data interface{}) (template.HTML, error) {
	comp, ok := p.tmpl.Components[id]
	if !ok {
		return "", fmt.Errorf("unknown component %q", id)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("component %q input is not serializable: %w", id, err)
	}
	key := "component:" + p.tmpl.CacheKey() + ":" + id + ":" + hashBytes(raw)

	if html, ok := p.memo[key]; ok {
		atomic.AddInt64(&p.engine.componentMemoHits, 1)
		return html, nil
	}
	if p.engine.cache != nil {
		if cached, ok, _ := p.engine.cache.Get(p.ctx, key); ok {
			atomic.AddInt64(&p.engine.componentMemoHits, 1)
			html := template.HTML(cached)
			p.memo[key] = html
			return html, nil
		}
	}

	rendered, err := p.execute(comp.Source, data)
	if err != nil {
		return "", err
	}
	atomic.AddInt64(&p.engine.componentRenders, 1)

	html := template.HTML(rendered)
	p.memo[key] = html
	if p.engine.cache != nil {
		_ = p.engine.cache.Set(p.ctx, key, []byte(rendered), componentCacheTTL)
	}
	return html, nil
}

func assetKind(k catalog.MediaKind) store.AssetKind {
	if k == catalog.MediaKindVideo {
		return store.AssetKindVideo
	}
	return store.AssetKindImage
}

func leafCategory(p *catalog.EnhancedProduct) *catalog.CategorySegment {
	if len(p.CategoryPath) == 0 {
		return nil
	}
	return &p.CategoryPath[len(p.CategoryPath)-1]
}

// distinctLeafCategories returns the leaf categories of the products in
// first-appearance order, so page ordering is deterministic.
func distinctLeafCategories(products []catalog.EnhancedProduct) []catalog.CategorySegment {
	seen := make(map[string]bool)
	var out []catalog.CategorySegment
	for i := range products {
		leaf := leafCategory(&products[i])
		if leaf == nil || seen[leaf.Slug] {
			continue
		}
		seen[leaf.Slug] = true
		out = append(out, *leaf)
	}
	return out
}

func productsInCategory(products []catalog.EnhancedProduct, categoryID uuid.UUID) []catalog.EnhancedProduct {
	var out []catalog.EnhancedProduct
	for i := range products {
		if leaf := leafCategory(&products[i]); leaf != nil && leaf.ID == categoryID {
			out = append(out, products[i])
		}
	}
	return out
}

// relatedProducts picks up to relatedProductCount products sharing the
// subject's leaf category, in snapshot order, falling back to snapshot
// neighbors when the category is too small.
func relatedProducts(products []catalog.EnhancedProduct, subject int) []catalog.EnhancedProduct {
	var out []catalog.EnhancedProduct
	subjectLeaf := leafCategory(&products[subject])
	for i := range products {
		if i == subject || len(out) >= relatedProductCount {
			continue
		}
		leaf := leafCategory(&products[i])
		if subjectLeaf != nil && leaf != nil && leaf.ID == subjectLeaf.ID {
			out = append(out, products[i])
		}
	}
	for i := range products {
		if len(out) >= relatedProductCount {
			break
		}
		if i == subject || containsProduct(out, products[i].ID) {
			continue
		}
		out = append(out, products[i])
	}
	return out
}

func containsProduct(products []catalog.EnhancedProduct, id uuid.UUID) bool {
	for i := range products {
		if products[i].ID == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:12])
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PageMeta holds the SEO meta tags attached to a page by the synthesizer
type PageMeta struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Canonical   string            `json:"canonical,omitempty"`
	Social      map[string]string `json:"social,omitempty"`
}

// Page is one rendered page of a store. Relations to other pages are
// held as id references resolved through the structure's page index,
// never as direct pointers, keeping ownership acyclic.
type Page struct {
	ID             string            `json:"id"`
	Type           PageType          `json:"type"`
	Path           string            `json:"path"`
	Title          string            `json:"title"`
	Blocks         map[string]string `json:"blocks"`
	AssetIDs       []string          `json:"asset_ids,omitempty"`
	RelatedPageIDs []string          `json:"related_page_ids,omitempty"`
	ProductID      *uuid.UUID        `json:"product_id,omitempty"`
	Meta           *PageMeta         `json:"meta,omitempty"`
	StructuredData []json.RawMessage `json:"structured_data,omitempty"`
}

// StoreStructure is the rendered output of one generation job: an
// ordered set of pages plus the store-level SEO artifacts.
type StoreStructure struct {
	JobID           uuid.UUID `json:"job_id"`
	TemplateID      string    `json:"template_id"`
	TemplateVersion string    `json:"template_version"`
	BaseURL         string    `json:"base_url,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
	Pages           []Page    `json:"pages"`
	Assets          []Asset   `json:"assets,omitempty"`
	Sitemap         string    `json:"sitemap,omitempty"`
	Robots          string    `json:"robots,omitempty"`

	pageIndex  map[string]int
	assetIndex map[string]int
}

// NewStoreStructure creates an empty structure for a job
func NewStoreStructure(jobID uuid.UUID, templateID, templateVersion string) *StoreStructure {
	return &StoreStructure{
		JobID:           jobID,
		TemplateID:      templateID,
		TemplateVersion: templateVersion,
		GeneratedAt:     time.Now().UTC(),
		pageIndex:       make(map[string]int),
		assetIndex:      make(map[string]int),
	}
}

// AddPage appends a page and indexes it by id
func (s *StoreStructure) AddPage(page Page) {
	if s.pageIndex == nil {
		s.pageIndex = make(map[string]int)
	}
	s.pageIndex[page.ID] = len(s.Pages)
	s.Pages = append(s.Pages, page)
}

// PageByID resolves a page id through the index, or nil
func (s *StoreStructure) PageByID(id string) *Page {
	if s.pageIndex == nil {
		s.reindex()
	}
	idx, ok := s.pageIndex[id]
	if !ok {
		return nil
	}
	return &s.Pages[idx]
}

func (s *StoreStructure) reindex() {
	s.pageIndex = make(map[string]int, len(s.Pages))
	for i := range s.Pages {
		s.pageIndex[s.Pages[i].ID] = i
	}
}

// AddAsset registers a source asset descriptor, deduplicating by id
func (s *StoreStructure) AddAsset(asset Asset) {
	if s.assetIndex == nil {
		s.assetIndex = make(map[string]int)
	}
	if _, ok := s.assetIndex[asset.ID]; ok {
		return
	}
	s.assetIndex[asset.ID] = len(s.Assets)
	s.Assets = append(s.Assets, asset)
}

// AssetByID resolves an asset descriptor by id, or nil
func (s *StoreStructure) AssetByID(id string) *Asset {
	if s.assetIndex == nil {
		s.assetIndex = make(map[string]int, len(s.Assets))
		for i := range s.Assets {
			s.assetIndex[s.Assets[i].ID] = i
		}
	}
	idx, ok := s.assetIndex[id]
	if !ok {
		return nil
	}
	return &s.Assets[idx]
}

// AssetIDs returns the union of asset ids referenced by all pages, in
// first-reference order with duplicates removed.
func (s *StoreStructure) AssetIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for i := range s.Pages {
		for _, id := range s.Pages[i].AssetIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

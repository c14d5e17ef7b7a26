package render

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/cache"
)

// TemplateStore loads storefront templates by id. Implementations must
// return templates that are safe to share: loaded templates are
// immutable and cached by id+version.
type TemplateStore interface {
	Load(ctx context.Context, id string) (*store.Template, error)
}

// InMemoryTemplateStore holds registered templates, the default store
// for tests and for the built-in template set.
type InMemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*store.Template
}

// NewInMemoryTemplateStore creates a store pre-loaded with the built-in
// default template.
func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	s := &InMemoryTemplateStore{templates: make(map[string]*store.Template)}
	s.Register(DefaultTemplate())
	return s
}

// Register adds or replaces a template
func (s *InMemoryTemplateStore) Register(t *store.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

// Load returns the template with the given id
func (s *InMemoryTemplateStore) Load(_ context.Context, id string) (*store.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, shared.NewDomainError(shared.ErrCodeTemplateNotFound, "Template not found: "+id)
	}
	return t, nil
}

// CachingTemplateStore wraps a template store with the shared cache
// layer so template definitions fetched from a remote source are reused
// across instances.
type CachingTemplateStore struct {
	inner TemplateStore
	cache *cache.TieredCache
	ttl   time.Duration
}

// NewCachingTemplateStore wraps the inner store with caching
func NewCachingTemplateStore(inner TemplateStore, c *cache.TieredCache, ttl time.Duration) *CachingTemplateStore {
	return &CachingTemplateStore{inner: inner, cache: c, ttl: ttl}
}

// Load returns the cached template, falling back to the inner store
func (s *CachingTemplateStore) Load(ctx context.Context, id string) (*store.Template, error) {
	raw, err := s.cache.GetOrCompute(ctx, "template:"+id, s.ttl, func(ctx context.Context) ([]byte, error) {
		t, err := s.inner.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(t)
	})
	if err != nil {
		return nil, err
	}
	var t store.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, shared.NewDomainError(shared.ErrCodeTemplateValidation, "Cached template is corrupt: "+id)
	}
	return &t, nil
}

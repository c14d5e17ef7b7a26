// Package deploy ships finished store artifacts to configured targets.
// Each target type speaks its own protocol behind the same narrow
// push/verify interface; the gateway fans out across targets.
package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/storegen/backend/internal/domain/store"
)

// Artifact is the deployable output of one generation job: the rendered
// structure plus the optimized variants its pages reference.
type Artifact struct {
	Structure *store.StoreStructure
	Assets    []store.OptimizedAsset

	rewriteOnce sync.Once
	rewriter    *strings.Replacer
}

// VariantURL resolves the best public URL for a source asset id: the
// widest responsive variant, or "" when optimization produced none.
func (a *Artifact) VariantURL(assetID string) string {
	for i := range a.Assets {
		if a.Assets[i].Source.ID != assetID {
			continue
		}
		var best *store.Variant
		for j := range a.Assets[i].Variants {
			v := &a.Assets[i].Variants[j]
			if v.Kind == store.VariantKindPlaceholder {
				continue
			}
			if best == nil || v.Width > best.Width {
				best = v
			}
		}
		if best != nil {
			return best.URL
		}
	}
	return ""
}

// assetRewriter maps every optimized source URL onto its public variant
// URL, in raw and attribute-escaped forms. Built once; deployer
// goroutines share the artifact.
func (a *Artifact) assetRewriter() *strings.Replacer {
	a.rewriteOnce.Do(func() {
		var pairs []string
		for i := range a.Assets {
			src := a.Assets[i].Source.URL
			url := a.VariantURL(a.Assets[i].Source.ID)
			if src == "" || url == "" || src == url {
				continue
			}
			pairs = append(pairs, src, url)
			if esc := htmlEscape(src); esc != src {
				pairs = append(pairs, esc, htmlEscape(url))
			}
		}
		a.rewriter = strings.NewReplacer(pairs...)
	})
	return a.rewriter
}

// PageHTML assembles the final HTML document for one page with every
// optimized source URL rewritten to its published variant, so deployed
// stores serve the CDN variants rather than the raw media. A source URL
// survives only when optimization produced no variant for that asset,
// and such assets already carry a recorded issue on the job.
func (a *Artifact) PageHTML(page *store.Page) string {
	return a.assetRewriter().Replace(pageDocument(page))
}

// Deployer pushes an artifact to one target and verifies the result.
// Implementations own their idempotent upload semantics; a deployer
// that fails mid-upload must report failure, never partial success.
type Deployer interface {
	// Type names the target type this deployer serves.
	Type() store.TargetType

	// Push uploads the artifact and returns the public URL of the
	// deployed store.
	Push(ctx context.Context, artifact *Artifact, target store.DeploymentTarget) (string, error)

	// Verify runs the post-upload health check against the deployed URL.
	Verify(ctx context.Context, url string, target store.DeploymentTarget) error
}

// CredentialStore resolves a target's credentials-reference into the
// secret the target API expects. Secrets never travel on the request.
type CredentialStore interface {
	Resolve(ref string) (string, error)
}

// StaticCredentials is a CredentialStore backed by a fixed map,
// typically loaded from environment configuration.
type StaticCredentials map[string]string

// Resolve looks up the secret for a credentials reference
func (s StaticCredentials) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	secret, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("unknown credentials reference %q", ref)
	}
	return secret, nil
}

// blockOrder is the canonical emission order for known layout slots;
// unknown slots follow alphabetically.
var blockOrder = map[string]int{"header": 0, "main": 1, "footer": 2}

// pageDocument assembles the HTML document for one page: head with
// synthesized meta tags and structured data, body from the rendered
// blocks. Output is deterministic for the same page.
func pageDocument(page *store.Page) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")

	title := page.Title
	if page.Meta != nil && page.Meta.Title != "" {
		title = page.Meta.Title
	}
	b.WriteString("<title>" + htmlEscape(title) + "</title>\n")

	if page.Meta != nil {
		if page.Meta.Description != "" {
			b.WriteString("<meta name=\"description\" content=\"" + htmlEscape(page.Meta.Description) + "\">\n")
		}
		if page.Meta.Canonical != "" {
			b.WriteString("<link rel=\"canonical\" href=\"" + htmlEscape(page.Meta.Canonical) + "\">\n")
		}
		keys := make([]string, 0, len(page.Meta.Social))
		for k := range page.Meta.Social {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attr := "property"
			if strings.HasPrefix(k, "twitter:") {
				attr = "name"
			}
			b.WriteString("<meta " + attr + "=\"" + k + "\" content=\"" + htmlEscape(page.Meta.Social[k]) + "\">\n")
		}
	}
	for _, block := range page.StructuredData {
		b.WriteString("<script type=\"application/ld+json\">" + string(block) + "</script>\n")
	}
	b.WriteString("</head>\n<body>\n")

	names := make([]string, 0, len(page.Blocks))
	for name := range page.Blocks {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, iok := blockOrder[names[i]]
		oj, jok := blockOrder[names[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return names[i] < names[j]
		}
	})
	for _, name := range names {
		b.WriteString(page.Blocks[name])
		b.WriteString("\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// PageFileName maps a page path to its object key, e.g. "/" -> "index.html"
func PageFileName(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "index.html"
	}
	return trimmed + "/index.html"
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

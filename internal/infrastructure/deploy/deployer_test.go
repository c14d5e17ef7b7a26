package deploy

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/storegen/backend/internal/domain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageFileName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "index.html"},
		{"/products", "products/index.html"},
		{"/products/headphones", "products/headphones/index.html"},
		{"/category/audio/", "category/audio/index.html"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageFileName(tt.path))
	}
}

func TestPageHTML(t *testing.T) {
	page := &store.Page{
		ID:    "product:headphones",
		Type:  store.PageTypeProduct,
		Path:  "/products/headphones",
		Title: "Raw Title",
		Blocks: map[string]string{
			"footer": "<footer>f</footer>",
			"main":   "<main>m</main>",
			"header": "<header>h</header>",
			"aside":  "<aside>a</aside>",
		},
		Meta: &store.PageMeta{
			Title:       "Headphones | Test Store",
			Description: `Over-ear "studio" headphones`,
			Canonical:   "https://store.example.com/products/headphones",
			Social: map[string]string{
				"og:title":     "Headphones | Test Store",
				"twitter:card": "summary_large_image",
			},
		},
		StructuredData: []json.RawMessage{json.RawMessage(`{"@type":"Product"}`)},
	}

	artifact := &Artifact{}
	html := artifact.PageHTML(page)

	assert.Contains(t, html, "<title>Headphones | Test Store</title>")
	assert.Contains(t, html, `content="Over-ear &quot;studio&quot; headphones"`)
	assert.Contains(t, html, `<link rel="canonical" href="https://store.example.com/products/headphones">`)
	assert.Contains(t, html, `<meta property="og:title"`)
	assert.Contains(t, html, `<meta name="twitter:card"`)
	assert.Contains(t, html, `<script type="application/ld+json">{"@type":"Product"}</script>`)

	// Body blocks come out in layout order, unknown slots last
	header := strings.Index(html, "<header>")
	main := strings.Index(html, "<main>")
	footer := strings.Index(html, "<footer>")
	aside := strings.Index(html, "<aside>")
	assert.Less(t, header, main)
	assert.Less(t, main, footer)
	assert.Less(t, footer, aside)

	assert.Equal(t, html, artifact.PageHTML(page), "assembly is deterministic")
}

func TestPageHTMLWithoutMeta(t *testing.T) {
	page := &store.Page{
		ID:     "home",
		Title:  "Test Store",
		Blocks: map[string]string{"main": "<main>m</main>"},
	}
	html := (&Artifact{}).PageHTML(page)
	assert.Contains(t, html, "<title>Test Store</title>")
	assert.NotContains(t, html, "og:")
}

func TestStaticCredentials(t *testing.T) {
	creds := StaticCredentials{"prod-token": "secret-value"}

	secret, err := creds.Resolve("prod-token")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", secret)

	// An empty reference means the target needs no credentials
	secret, err = creds.Resolve("")
	require.NoError(t, err)
	assert.Empty(t, secret)

	_, err = creds.Resolve("missing")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-value")
}

func TestArtifactVariantURL(t *testing.T) {
	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "")
	placeholderOnly := store.NewAsset("https://img.example.com/b.jpg", store.AssetKindImage, "")
	artifact := &Artifact{
		Assets: []store.OptimizedAsset{
			{
				Source: asset,
				Variants: []store.Variant{
					{Kind: store.VariantKindPlaceholder, Format: "webp", Width: 32, URL: "https://cdn.example.com/a-placeholder.webp"},
					{Kind: store.VariantKindResponsive, Format: "webp", Width: 320, URL: "https://cdn.example.com/a-320.webp"},
					{Kind: store.VariantKindResponsive, Format: "webp", Width: 640, URL: "https://cdn.example.com/a-640.webp"},
				},
			},
			{
				Source: placeholderOnly,
				Variants: []store.Variant{
					{Kind: store.VariantKindPlaceholder, Format: "webp", Width: 32, URL: "https://cdn.example.com/b-placeholder.webp"},
				},
			},
		},
	}

	assert.Equal(t, "https://cdn.example.com/a-640.webp", artifact.VariantURL(asset.ID), "widest responsive variant wins")
	assert.Empty(t, artifact.VariantURL(placeholderOnly.ID), "a placeholder alone is not a deployable variant")
	assert.Empty(t, artifact.VariantURL("unknown"))
}

func TestPageHTMLRewritesAssetURLs(t *testing.T) {
	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "")
	missed := store.NewAsset("https://img.example.com/broken.jpg", store.AssetKindImage, "")
	artifact := &Artifact{
		Assets: []store.OptimizedAsset{
			{
				Source: asset,
				Variants: []store.Variant{
					{Kind: store.VariantKindResponsive, Format: "webp", Width: 320, URL: "https://cdn.example.com/a-320.webp"},
					{Kind: store.VariantKindResponsive, Format: "webp", Width: 640, URL: "https://cdn.example.com/a-640.webp"},
				},
			},
			{Source: missed},
		},
	}
	page := &store.Page{
		ID:    "home",
		Title: "Test Store",
		Blocks: map[string]string{
			"main": `<main><img src="https://img.example.com/a.jpg"><img src="https://img.example.com/broken.jpg"></main>`,
		},
		Meta: &store.PageMeta{
			Social: map[string]string{"og:image": "https://img.example.com/a.jpg"},
		},
	}

	html := artifact.PageHTML(page)

	assert.Contains(t, html, `src="https://cdn.example.com/a-640.webp"`, "widest responsive variant replaces the source")
	assert.Contains(t, html, `content="https://cdn.example.com/a-640.webp"`, "meta tags are rewritten too")
	assert.NotContains(t, html, "img.example.com/a.jpg")

	// An asset the optimizer could not process keeps its source URL
	assert.Contains(t, html, "https://img.example.com/broken.jpg")
}

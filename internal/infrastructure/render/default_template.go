package render

import (
	"github.com/storegen/backend/internal/domain/store"
)

// DefaultTemplateID is the id of the built-in storefront template
const DefaultTemplateID = "classic"

const defaultHeaderBlock = `<header class="site-header">
  <a class="logo" href="/">{{.Store.Name}}</a>
  <nav><a href="/products">All products</a></nav>
</header>`

const defaultMainBlock = `<main><h1>{{.Title}}</h1></main>`

const defaultFooterBlock = `<footer class="site-footer">
  <p>&copy; {{.Store.Name}}</p>
</footer>`

const defaultHomeMain = `<main class="home">
  <h1>{{.Store.Name}}</h1>
  <section class="featured">
    {{range .Products}}{{component "product_card" .}}{{end}}
  </section>
</main>`

const defaultListingMain = `<main class="listing">
  <h1>{{.Title}}</h1>
  <section class="grid">
    {{range .Products}}{{component "product_card" .}}{{end}}
  </section>
</main>`

const defaultCategoryMain = `<main class="category">
  {{component "breadcrumbs" .Category}}
  <h1>{{.Category.Name}}</h1>
  <section class="grid">
    {{range .Products}}{{component "product_card" .}}{{end}}
  </section>
</main>`

const defaultProductMain = `<main class="product">
  <h1>{{.Product.Name}}</h1>
  {{with .Product.Brand}}<p class="brand">{{.Name}}</p>{{end}}
  <p class="price">
    {{if .Product.OnSale}}<del>{{formatMoney .Product.Price .Product.Currency}}</del>{{end}}
    {{formatMoney .Product.EffectivePrice .Product.Currency}}
  </p>
  <div class="description">{{.Product.Description}}</div>
  <section class="related">
    {{range .Related}}{{component "product_card" .}}{{end}}
  </section>
</main>`

const productCardComponent = `<article class="product-card">
  {{with .PrimaryImage}}<img src="{{safeURL .URL}}" alt="{{.AltText}}">{{end}}
  <h3>{{.Name}}</h3>
  <p class="price">{{formatMoney .EffectivePrice .Currency}}</p>
  {{if .OnSale}}<span class="badge">Sale</span>{{end}}
</article>`

const breadcrumbsComponent = `<nav class="breadcrumbs">
  <a href="/">Home</a> / <span>{{.Name}}</span>
</nav>`

// DefaultTemplate returns the built-in storefront template. It doubles
// as the reference shape for externally supplied templates.
func DefaultTemplate() *store.Template {
	return &store.Template{
		ID:      DefaultTemplateID,
		Version: "1.0.0",
		Name:    "Classic storefront",
		Layout: store.Layout{
			Blocks: map[string]string{
				"header": defaultHeaderBlock,
				"main":   defaultMainBlock,
				"footer": defaultFooterBlock,
			},
		},
		Components: map[string]store.Component{
			"product_card": {ID: "product_card", Source: productCardComponent},
			"breadcrumbs":  {ID: "breadcrumbs", Source: breadcrumbsComponent},
		},
		Pages: []store.PageTemplate{
			{
				Type:       store.PageTypeHome,
				Overrides:  map[string]string{"main": defaultHomeMain},
				Components: []string{"product_card"},
			},
			{
				Type:       store.PageTypeListing,
				Overrides:  map[string]string{"main": defaultListingMain},
				Components: []string{"product_card"},
			},
			{
				Type:       store.PageTypeCategory,
				Overrides:  map[string]string{"main": defaultCategoryMain},
				Components: []string{"product_card", "breadcrumbs"},
			},
			{
				Type:       store.PageTypeProduct,
				Overrides:  map[string]string{"main": defaultProductMain},
				Components: []string{"product_card"},
			},
		},
	}
}

package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storegen/backend/internal/domain/store"
	"go.uber.org/zap"
)

// ThemePlatformDeployer publishes a store as a theme on a hosted
// commerce platform. Pages are uploaded as theme assets into an
// unpublished theme; publishing the theme is the commit point, so a
// mid-upload failure never disturbs the live theme.
type ThemePlatformDeployer struct {
	credentials CredentialStore
	client      *http.Client
	logger      *zap.Logger
}

// ThemePlatformOption configures the theme platform deployer
type ThemePlatformOption func(*ThemePlatformDeployer)

// WithThemePlatformLogger sets the logger
func WithThemePlatformLogger(logger *zap.Logger) ThemePlatformOption {
	return func(d *ThemePlatformDeployer) {
		d.logger = logger
	}
}

// WithThemePlatformClient sets the HTTP client
func WithThemePlatformClient(client *http.Client) ThemePlatformOption {
	return func(d *ThemePlatformDeployer) {
		d.client = client
	}
}

// NewThemePlatformDeployer creates a theme platform deployer
func NewThemePlatformDeployer(credentials CredentialStore, opts ...ThemePlatformOption) *ThemePlatformDeployer {
	d := &ThemePlatformDeployer{
		credentials: credentials,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Type returns the target type served by this deployer
func (d *ThemePlatformDeployer) Type() store.TargetType {
	return store.TargetTypeThemePlatform
}

type themeResponse struct {
	ID            string `json:"id"`
	StorefrontURL string `json:"storefront_url"`
}

// Push creates an unpublished theme, uploads every page as a theme
// asset, then publishes the theme.
func (d *ThemePlatformDeployer) Push(ctx context.Context, artifact *Artifact, target store.DeploymentTarget) (string, error) {
	token, err := d.credentials.Resolve(target.CredentialsRef)
	if err != nil {
		return "", fmt.Errorf("resolving credentials for %s: %w", target.Name, err)
	}

	base := strings.TrimSuffix(target.Destination, "/")
	structure := artifact.Structure

	theme, err := d.createTheme(ctx, base, token, structure.TemplateID+"@"+structure.TemplateVersion)
	if err != nil {
		return "", err
	}

	for i := range structure.Pages {
		page := &structure.Pages[i]
		asset := themeAsset{
			Key:   "templates/" + themeAssetKey(page),
			Value: artifact.PageHTML(page),
		}
		if err := d.uploadAsset(ctx, base, token, theme.ID, asset); err != nil {
			return "", fmt.Errorf("uploading theme asset for %s: %w", page.Path, err)
		}
	}

	url, err := d.publishTheme(ctx, base, token, theme.ID)
	if err != nil {
		return "", fmt.Errorf("publishing theme %s: %w", theme.ID, err)
	}

	d.logger.Info("Theme published",
		zap.String("target", target.Name),
		zap.String("theme_id", theme.ID),
		zap.Int("pages", len(structure.Pages)),
	)
	return url, nil
}

// Verify fetches the storefront and checks it serves HTML
func (d *ThemePlatformDeployer) Verify(ctx context.Context, url string, target store.DeploymentTarget) error {
	return verifyServesHTML(ctx, d.client, url)
}

type themeAsset struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// themeAssetKey maps page types onto the platform's template slots
func themeAssetKey(page *store.Page) string {
	switch page.Type {
	case store.PageTypeHome:
		return "index.html"
	case store.PageTypeProduct:
		return "products/" + strings.Trim(strings.TrimPrefix(page.Path, "/product"), "/") + ".html"
	case store.PageTypeCategory:
		return "collections/" + strings.Trim(strings.TrimPrefix(page.Path, "/category"), "/") + ".html"
	default:
		return strings.Trim(page.Path, "/") + ".html"
	}
}

func (d *ThemePlatformDeployer) createTheme(ctx context.Context, base, token, name string) (*themeResponse, error) {
	payload, _ := json.Marshal(map[string]string{"name": name, "role": "unpublished"})
	var resp themeResponse
	if err := d.call(ctx, http.MethodPost, base+"/themes", token, payload, &resp); err != nil {
		return nil, fmt.Errorf("creating theme: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("theme platform returned no theme id")
	}
	return &resp, nil
}

func (d *ThemePlatformDeployer) uploadAsset(ctx context.Context, base, token, themeID string, asset themeAsset) error {
	payload, _ := json.Marshal(asset)
	return d.call(ctx, http.MethodPut, base+"/themes/"+themeID+"/assets", token, payload, nil)
}

func (d *ThemePlatformDeployer) publishTheme(ctx context.Context, base, token, themeID string) (string, error) {
	var resp themeResponse
	if err := d.call(ctx, http.MethodPost, base+"/themes/"+themeID+"/publish", token, nil, &resp); err != nil {
		return "", err
	}
	return resp.StorefrontURL, nil
}

func (d *ThemePlatformDeployer) call(ctx context.Context, method, url, token string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Platform-Access-Token", token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("theme platform returned %d: %s", resp.StatusCode, string(detail))
	}
	if out != nil {
		return decodeJSON(resp.Body, out)
	}
	return nil
}

package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storegen/backend/internal/domain/store"
	"go.uber.org/zap"
)

// StaticHostDeployer pushes rendered pages to a static-file hosting
// API. The protocol is a two-phase upload: files are PUT into a staging
// deploy, then the deploy is activated atomically. A failure before
// activation leaves the previous deploy serving.
type StaticHostDeployer struct {
	credentials CredentialStore
	client      *http.Client
	logger      *zap.Logger
}

// StaticHostOption configures the static host deployer
type StaticHostOption func(*StaticHostDeployer)

// WithStaticHostLogger sets the logger
func WithStaticHostLogger(logger *zap.Logger) StaticHostOption {
	return func(d *StaticHostDeployer) {
		d.logger = logger
	}
}

// WithStaticHostClient sets the HTTP client
func WithStaticHostClient(client *http.Client) StaticHostOption {
	return func(d *StaticHostDeployer) {
		d.client = client
	}
}

// NewStaticHostDeployer creates a static hosting deployer
func NewStaticHostDeployer(credentials CredentialStore, opts ...StaticHostOption) *StaticHostDeployer {
	d := &StaticHostDeployer{
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
func (d *StaticHostDeployer) Type() store.TargetType {
	return store.TargetTypeStaticHost
}

// Push uploads every page plus sitemap and robots into a staging
// deploy, then activates it. The activation is the commit point: until
// it succeeds, the target keeps serving its previous deploy.
func (d *StaticHostDeployer) Push(ctx context.Context, artifact *Artifact, target store.DeploymentTarget) (string, error) {
	token, err := d.credentials.Resolve(target.CredentialsRef)
	if err != nil {
		return "", fmt.Errorf("resolving credentials for %s: %w", target.Name, err)
	}

	base := strings.TrimSuffix(target.Destination, "/")

	deployID, err := d.createDeploy(ctx, base, token)
	if err != nil {
		return "", err
	}

	structure := artifact.Structure
	for i := range structure.Pages {
		page := &structure.Pages[i]
		if err := d.uploadFile(ctx, base, token, deployID, PageFileName(page.Path), []byte(artifact.PageHTML(page)), "text/html; charset=utf-8"); err != nil {
			return "", fmt.Errorf("uploading %s: %w", page.Path, err)
		}
	}
	if structure.Sitemap != "" {
		if err := d.uploadFile(ctx, base, token, deployID, "sitemap.xml", []byte(structure.Sitemap), "application/xml"); err != nil {
			return "", err
		}
	}
	if structure.Robots != "" {
		if err := d.uploadFile(ctx, base, token, deployID, "robots.txt", []byte(structure.Robots), "text/plain"); err != nil {
			return "", err
		}
	}

	url, err := d.activateDeploy(ctx, base, token, deployID)
	if err != nil {
		return "", fmt.Errorf("activating deploy %s: %w", deployID, err)
	}

	d.logger.Info("Static host deploy activated",
		zap.String("target", target.Name),
		zap.String("deploy_id", deployID),
		zap.Int("pages", len(structure.Pages)),
	)
	return url, nil
}

// Verify fetches the deployed home page and checks it serves HTML
func (d *StaticHostDeployer) Verify(ctx context.Context, url string, target store.DeploymentTarget) error {
	return verifyServesHTML(ctx, d.client, url)
}

type staticDeployResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (d *StaticHostDeployer) createDeploy(ctx context.Context, base, token string) (string, error) {
	var resp staticDeployResponse
	if err := d.call(ctx, http.MethodPost, base+"/deploys", token, nil, "", &resp); err != nil {
		return "", fmt.Errorf("creating deploy: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("static host returned no deploy id")
	}
	return resp.ID, nil
}

func (d *StaticHostDeployer) uploadFile(ctx context.Context, base, token, deployID, name string, payload []byte, contentType string) error {
	return d.call(ctx, http.MethodPut, base+"/deploys/"+deployID+"/files/"+name, token, payload, contentType, nil)
}

func (d *StaticHostDeployer) activateDeploy(ctx context.Context, base, token, deployID string) (string, error) {
	var resp staticDeployResponse
	if err := d.call(ctx, http.MethodPost, base+"/deploys/"+deployID+"/activate", token, nil, "", &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (d *StaticHostDeployer) call(ctx context.Context, method, url, token string, payload []byte, contentType string, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("static host returned %d: %s", resp.StatusCode, string(detail))
	}
	if out != nil {
		return decodeJSON(resp.Body, out)
	}
	return nil
}

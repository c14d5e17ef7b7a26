package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/assets"
	"go.uber.org/zap"
)

// ObjectStorageDeployer ships rendered pages into an S3-compatible
// bucket behind a CDN, then invalidates the store's path prefix. Pages
// land under stable keys below the target destination prefix and are
// rewritten in place on every deploy, so they are published with
// mutable caching headers.
type ObjectStorageDeployer struct {
	publisher assets.Publisher
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

// ObjectStorageOption configures the object storage deployer
type ObjectStorageOption func(*ObjectStorageDeployer)

// WithObjectStorageLogger sets the logger
func WithObjectStorageLogger(logger *zap.Logger) ObjectStorageOption {
	return func(d *ObjectStorageDeployer) {
		d.logger = logger
	}
}

// WithObjectStorageClient sets the HTTP client used for verification
func WithObjectStorageClient(client *http.Client) ObjectStorageOption {
	return func(d *ObjectStorageDeployer) {
		d.client = client
	}
}

// NewObjectStorageDeployer creates an object storage deployer on top of
// the shared CDN publisher. publicBaseURL is where uploaded keys become
// reachable.
func NewObjectStorageDeployer(publisher assets.Publisher, publicBaseURL string, opts ...ObjectStorageOption) *ObjectStorageDeployer {
	d := &ObjectStorageDeployer{
		publisher: publisher,
		baseURL:   strings.TrimSuffix(publicBaseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Type returns the target type served by this deployer
func (d *ObjectStorageDeployer) Type() store.TargetType {
	return store.TargetTypeObjectStorage
}

// Push uploads pages, sitemap, and robots under the destination prefix,
// then invalidates the prefix so the CDN serves the new content. A
// failed upload aborts before invalidation, leaving the previous
// content cached and served.
func (d *ObjectStorageDeployer) Push(ctx context.Context, artifact *Artifact, target store.DeploymentTarget) (string, error) {
	prefix := strings.Trim(target.Destination, "/")
	structure := artifact.Structure

	for i := range structure.Pages {
		page := &structure.Pages[i]
		key := prefix + "/" + PageFileName(page.Path)
		if _, err := d.publisher.PublishMutable(ctx, key, []byte(artifact.PageHTML(page)), "text/html; charset=utf-8"); err != nil {
			return "", fmt.Errorf("uploading %s: %w", page.Path, err)
		}
	}
	if structure.Sitemap != "" {
		if _, err := d.publisher.PublishMutable(ctx, prefix+"/sitemap.xml", []byte(structure.Sitemap), "application/xml"); err != nil {
			return "", err
		}
	}
	if structure.Robots != "" {
		if _, err := d.publisher.PublishMutable(ctx, prefix+"/robots.txt", []byte(structure.Robots), "text/plain"); err != nil {
			return "", err
		}
	}

	if err := d.publisher.Invalidate(ctx, prefix+"/"); err != nil {
		return "", fmt.Errorf("invalidating %s: %w", prefix, err)
	}

	d.logger.Info("Object storage deploy complete",
		zap.String("target", target.Name),
		zap.String("prefix", prefix),
		zap.Int("pages", len(structure.Pages)),
	)
	return d.baseURL + "/" + prefix + "/", nil
}

// Verify fetches the deployed index page through the CDN
func (d *ObjectStorageDeployer) Verify(ctx context.Context, url string, target store.DeploymentTarget) error {
	return verifyServesHTML(ctx, d.client, url)
}

// verifyServesHTML is the shared post-upload health check: fetch the
// deployed URL and confirm it answers with an HTML document.
func verifyServesHTML(ctx context.Context, client *http.Client, url string) error {
	if url == "" {
		return fmt.Errorf("no deployed URL to verify")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("verification fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verification fetch returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading verification response: %w", err)
	}
	if !strings.Contains(strings.ToLower(string(body)), "<html") {
		return fmt.Errorf("deployed page does not look like an HTML document")
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

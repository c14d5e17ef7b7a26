package generation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"valid", func(r *Request) {}, ""},
		{"missing template", func(r *Request) { r.TemplateID = "" }, "Template id is required"},
		{"negative max products", func(r *Request) { r.Filter.MaxProducts = -1 }, "Max products cannot be negative"},
		{"no targets", func(r *Request) { r.Targets = nil }, "At least one deployment target is required"},
		{"unknown format", func(r *Request) { r.Optimization.Formats = []string{"gif"} }, "Unrecognized output format"},
		{"descending breakpoints", func(r *Request) { r.Optimization.Breakpoints = []int{640, 320} }, "strictly ascending"},
		{"quality out of range", func(r *Request) { r.Optimization.Quality = 101 }, "Quality must be between"},
		{"bad target type", func(r *Request) { r.Targets[0].Type = "ftp" }, "Unrecognized deployment target type"},
		{
			"duplicate target names",
			func(r *Request) {
				r.Targets = append(r.Targets, r.Targets[0])
			},
			"Duplicate deployment target name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFingerprintStability(t *testing.T) {
	brandA := uuid.New()
	brandB := uuid.New()

	base := testRequest()
	base.Filter = catalog.Filter{BrandIDs: []uuid.UUID{brandA, brandB}, MaxProducts: 10}

	reordered := base
	reordered.Filter = catalog.Filter{BrandIDs: []uuid.UUID{brandB, brandA}, MaxProducts: 10}

	// Filter id order does not change the fingerprint
	assert.Equal(t, Fingerprint(&base), Fingerprint(&reordered))

	// Neither do the targets or the requester identity: the same
	// aggregate+render work dedups across destinations.
	differentTargets := base
	differentTargets.Targets = []store.DeploymentTarget{
		{Name: "other", Type: store.TargetTypeObjectStorage, Destination: "stores/other"},
	}
	differentTargets.RequestedBy = "someone-else"
	assert.Equal(t, Fingerprint(&base), Fingerprint(&differentTargets))

	// Semantically relevant fields do
	differentTemplate := base
	differentTemplate.TemplateID = "minimal"
	assert.NotEqual(t, Fingerprint(&base), Fingerprint(&differentTemplate))

	differentFilter := base
	differentFilter.Filter = catalog.Filter{BrandIDs: []uuid.UUID{brandA}, MaxProducts: 10}
	assert.NotEqual(t, Fingerprint(&base), Fingerprint(&differentFilter))

	differentQuality := base
	differentQuality.Optimization.Quality = 50
	assert.NotEqual(t, Fingerprint(&base), Fingerprint(&differentQuality))
}

func TestDefaultOptimizationConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultOptimizationConfig().Validate())
}

package generation

import (
	"sort"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
)

// Recognized output formats for asset optimization
const (
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatMP4  = "mp4"
	FormatWebM = "webm"
)

var recognizedFormats = map[string]bool{
	FormatWebP: true,
	FormatAVIF: true,
	FormatJPEG: true,
	FormatPNG:  true,
	FormatMP4:  true,
	FormatWebM: true,
}

// OptimizationConfig enumerates the recognized asset optimization options.
// All fields are explicit; unknown options are rejected at submission time.
type OptimizationConfig struct {
	// Formats are the output formats produced per source asset.
	Formats []string `json:"formats"`
	// Breakpoints are the responsive widths, in pixels, ascending.
	Breakpoints []int `json:"breakpoints"`
	// Quality is the lossy compression quality (1-100).
	Quality int `json:"quality"`
	// Placeholder enables the low-resolution progressive-loading variant.
	Placeholder bool `json:"placeholder"`
	// PlaceholderWidth is the pixel width of the placeholder variant.
	PlaceholderWidth int `json:"placeholder_width"`
}

// DefaultOptimizationConfig returns the options applied when a request
// leaves the optimization section empty.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		Formats:          []string{FormatWebP, FormatJPEG},
		Breakpoints:      []int{320, 640, 1024, 1920},
		Quality:          80,
		Placeholder:      true,
		PlaceholderWidth: 24,
	}
}

// Validate checks the optimization options against the recognized set
func (c OptimizationConfig) Validate() error {
	if len(c.Formats) == 0 {
		return shared.NewDomainError(shared.ErrCodeValidation, "At least one output format is required")
	}
	for _, f := range c.Formats {
		if !recognizedFormats[f] {
			return shared.NewDomainError(shared.ErrCodeValidation, "Unrecognized output format: "+f)
		}
	}
	if len(c.Breakpoints) == 0 {
		return shared.NewDomainError(shared.ErrCodeValidation, "At least one resolution breakpoint is required")
	}
	prev := 0
	for _, w := range c.Breakpoints {
		if w <= prev {
			return shared.NewDomainError(shared.ErrCodeValidation, "Breakpoints must be positive and strictly ascending")
		}
		prev = w
	}
	if c.Quality < 1 || c.Quality > 100 {
		return shared.NewDomainError(shared.ErrCodeValidation, "Quality must be between 1 and 100")
	}
	if c.Placeholder && c.PlaceholderWidth <= 0 {
		return shared.NewDomainError(shared.ErrCodeValidation, "Placeholder width must be positive")
	}
	return nil
}

// Request is the immutable input to a generation job. It is snapshotted
// onto the job at submission and never mutated afterwards.
type Request struct {
	Filter       catalog.Filter           `json:"filter"`
	TemplateID   string                   `json:"template_id"`
	Optimization OptimizationConfig       `json:"optimization"`
	Targets      []store.DeploymentTarget `json:"targets"`
	RequestedBy  string                   `json:"requested_by"`
}

// Validate performs submission-time validation. Failures here map to
// VALIDATION_ERROR and occur before any job is created.
func (r *Request) Validate() error {
	if r.TemplateID == "" {
		return shared.NewDomainError(shared.ErrCodeValidation, "Template id is required")
	}
	if r.Filter.MaxProducts < 0 {
		return shared.NewDomainError(shared.ErrCodeValidation, "Max products cannot be negative")
	}
	if err := r.Optimization.Validate(); err != nil {
		return err
	}
	if len(r.Targets) == 0 {
		return shared.NewDomainError(shared.ErrCodeValidation, "At least one deployment target is required")
	}
	seen := make(map[string]bool, len(r.Targets))
	for i := range r.Targets {
		if err := r.Targets[i].Validate(); err != nil {
			return err
		}
		if seen[r.Targets[i].Name] {
			return shared.NewDomainError(shared.ErrCodeValidation, "Duplicate deployment target name: "+r.Targets[i].Name)
		}
		seen[r.Targets[i].Name] = true
	}
	return nil
}

// normalizedFilter returns the catalog filter with id slices sorted so
// that logically identical filters fingerprint identically.
func (r *Request) normalizedFilter() catalog.Filter {
	f := catalog.Filter{
		MaxProducts: r.Filter.MaxProducts,
		BrandIDs:    append([]uuid.UUID(nil), r.Filter.BrandIDs...),
		CategoryIDs: append([]uuid.UUID(nil), r.Filter.CategoryIDs...),
	}
	sort.Slice(f.BrandIDs, func(i, j int) bool { return f.BrandIDs[i].String() < f.BrandIDs[j].String() })
	sort.Slice(f.CategoryIDs, func(i, j int) bool { return f.CategoryIDs[i].String() < f.CategoryIDs[j].String() })
	return f
}

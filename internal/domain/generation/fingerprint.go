package generation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/storegen/backend/internal/domain/catalog"
)

// fingerprintPayload contains exactly the semantically relevant request
// fields. Requester identity and deployment targets are deliberately
// excluded: two requests that aggregate and render the same store share
// one fingerprint even when they deploy to different places.
type fingerprintPayload struct {
	Filter       catalog.Filter     `json:"filter"`
	TemplateID   string             `json:"template_id"`
	Optimization OptimizationConfig `json:"optimization"`
}

// Fingerprint derives the cache/dedup key for a request. It is a pure
// function of the catalog filter, template id, and optimization options;
// id slices are sorted first so field order in the caller cannot change
// the result.
func Fingerprint(req *Request) string {
	payload := fingerprintPayload{
		Filter:       req.normalizedFilter(),
		TemplateID:   req.TemplateID,
		Optimization: req.Optimization,
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

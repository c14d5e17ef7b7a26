package store

import (
	"time"

	"github.com/storegen/backend/internal/domain/shared"
)

// TargetType identifies a deployment target protocol family
type TargetType string

const (
	TargetTypeStaticHost    TargetType = "static_host"
	TargetTypeThemePlatform TargetType = "theme_platform"
	TargetTypeObjectStorage TargetType = "object_storage"
)

// DeploymentState is the per-target state machine:
// pending -> uploading -> verifying -> succeeded|failed
type DeploymentState string

const (
	DeploymentStatePending   DeploymentState = "pending"
	DeploymentStateUploading DeploymentState = "uploading"
	DeploymentStateVerifying DeploymentState = "verifying"
	DeploymentStateSucceeded DeploymentState = "succeeded"
	DeploymentStateFailed    DeploymentState = "failed"
)

// DeploymentTarget is a target configuration triple. CredentialsRef
// names a secret in the credentials store; raw secrets never appear in
// requests or job records.
type DeploymentTarget struct {
	Name           string     `json:"name"`
	Type           TargetType `json:"type"`
	Destination    string     `json:"destination"`
	CredentialsRef string     `json:"credentials_ref,omitempty"`
}

// Validate checks the target configuration
func (t *DeploymentTarget) Validate() error {
	if t.Name == "" {
		return shared.NewDomainError(shared.ErrCodeValidation, "Deployment target name is required")
	}
	switch t.Type {
	case TargetTypeStaticHost, TargetTypeThemePlatform, TargetTypeObjectStorage:
	default:
		return shared.NewDomainError(shared.ErrCodeValidation, "Unrecognized deployment target type: "+string(t.Type))
	}
	if t.Destination == "" {
		return shared.NewDomainError(shared.ErrCodeValidation, "Deployment target destination is required")
	}
	return nil
}

// DeploymentResult records the outcome for one target of one job.
// Results are append-only: one per target, never overwritten.
type DeploymentResult struct {
	Target     string          `json:"target"`
	Type       TargetType      `json:"type"`
	State      DeploymentState `json:"state"`
	URL        string          `json:"url,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Succeeded reports whether the target reached the succeeded state
func (r *DeploymentResult) Succeeded() bool {
	return r.State == DeploymentStateSucceeded
}

// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/roll"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST VERSIONS QUERY
// Returns the prior outputs recorded for one scope, oldest first.
// ══════════════════════════════════════════════════════════════════════════════

// ListVersionsQuery identifies a scope.
type ListVersionsQuery struct {
	SchoolNumber string
	MonthCode    string
	Year         int
	Draft        bool

	// CompleteOnly hides versions whose generation never finished.
	CompleteOnly bool
}

// VersionDTO is one version as presented to callers.
type VersionDTO struct {
	Version     int        `json:"version"`
	Path        string     `json:"path"`
	Status      string     `json:"status"`
	Digest      string     `json:"digest,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListVersionsResult contains the versions of a scope.
type ListVersionsResult struct {
	FileTag  string       `json:"file_tag"`
	Mode     string       `json:"mode"`
	Versions []VersionDTO `json:"versions"`

	// Latest is the highest listed version, 0 when none.
	Latest int `json:"latest"`
}

// VersionLister reads versions from the registry.
type VersionLister interface {
	ListVersions(ctx context.Context, scope registry.Scope) ([]registry.VersionRecord, error)
}

// ListVersionsHandler handles ListVersionsQuery.
type ListVersionsHandler struct {
	registry VersionLister
}

// NewListVersionsHandler creates a new handler.
func NewListVersionsHandler(reg VersionLister) *ListVersionsHandler {
	return &ListVersionsHandler{registry: reg}
}

// Handle executes the query.
func (h *ListVersionsHandler) Handle(ctx context.Context, q ListVersionsQuery) (*ListVersionsResult, error) {
	period, err := roll.NewPeriod(q.MonthCode, q.Year)
	if err != nil {
		return nil, err
	}
	scope, err := registry.NewScope(q.SchoolNumber, period, q.Draft)
	if err != nil {
		return nil, err
	}

	recs, err := h.registry.ListVersions(ctx, scope)
	if err != nil {
		return nil, err
	}

	result := &ListVersionsResult{
		FileTag:  registry.FileTag(scope),
		Mode:     string(scope.Mode()),
		Versions: make([]VersionDTO, 0, len(recs)),
	}
	for _, r := range recs {
		if q.CompleteOnly && !r.IsComplete() {
			continue
		}
		result.Versions = append(result.Versions, VersionDTO{
			Version:     r.Version,
			Path:        r.Path,
			Status:      string(r.Status),
			Digest:      r.Digest,
			CreatedAt:   r.CreatedAt,
			CompletedAt: r.CompletedAt,
		})
		if r.Version > result.Latest {
			result.Latest = r.Version
		}
	}
	return result, nil
}

// Package status persists the two durable tables of the system: the disk
// assignment of each course and the per-asset transfer outcomes. Both
// backends guarantee atomic per-record upsert; nothing else in the system
// holds durable state.
package status

import (
	"context"

	"github.com/coursevault/coursevault/internal/entity"
)

// Store is the durable source of truth for "what still needs doing".
// Implementations assume single-process, single-run access.
type Store interface {
	// Assignment returns the stored volume for a course key, or
	// common.ErrAssignmentNotFound.
	Assignment(ctx context.Context, courseKey string) (entity.DiskAssignment, error)
	// Assignments returns the whole assignment table keyed by course key.
	Assignments(ctx context.Context) (map[string]entity.DiskAssignment, error)
	// SaveAssignment upserts one assignment record durably.
	SaveAssignment(ctx context.Context, a entity.DiskAssignment) error

	// Outcomes returns the outcome row for one course keyed by asset type.
	Outcomes(ctx context.Context, courseKey string) (map[entity.AssetType]entity.TransferOutcome, error)
	// AllOutcomes returns every outcome keyed by course key then asset type.
	AllOutcomes(ctx context.Context) (map[string]map[entity.AssetType]entity.TransferOutcome, error)
	// SaveOutcome upserts one outcome record durably before returning.
	SaveOutcome(ctx context.Context, o entity.TransferOutcome) error
}

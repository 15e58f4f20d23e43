package entity

import "time"

// LocalStatus classifies local presence of one asset.
type LocalStatus string

const (
	LocalFound            LocalStatus = "found"
	LocalFoundViaTransfer LocalStatus = "found-via-transfer"
	LocalAbsent           LocalStatus = "absent"
)

// RemoteStatus classifies the reachability of one remote folder link.
type RemoteStatus string

const (
	RemoteAvailable  RemoteStatus = "available"
	RemoteMissing    RemoteStatus = "missing"
	RemoteBroken     RemoteStatus = "broken"
	RemoteAbsentLink RemoteStatus = "absent-link"
	RemoteUnchecked  RemoteStatus = "unchecked"
)

// MatchResult is the fuzzy-match verdict for one (course, asset) pair.
// Derived per run, never persisted.
type MatchResult struct {
	Matched bool
	Root    string
	RelPath string
	Score   int
}

// AvailabilityRecord combines local and remote evidence for one
// (course, asset) pair. Consumed by report rendering only.
type AvailabilityRecord struct {
	Course       string
	Asset        AssetType
	LocalStatus  LocalStatus
	LocalPath    string
	MatchScore   int
	RemoteStatus RemoteStatus
}

// Satisfied reports whether the asset is covered by either evidence source.
func (r *AvailabilityRecord) Satisfied() bool {
	return r.LocalStatus != LocalAbsent || r.RemoteStatus == RemoteAvailable
}

// RowClass is the per-course rollup of the six availability records.
type RowClass string

const (
	RowComplete RowClass = "complete"
	RowPartial  RowClass = "partial"
	RowNone     RowClass = "none"
)

// CourseAvailability is the reconciliation result for one course.
type CourseAvailability struct {
	Course  string
	Status  string
	Records []AvailabilityRecord
	Class   RowClass
}

// OutcomeStatus is the persistent per-asset transfer state.
type OutcomeStatus string

const (
	OutcomeNotStarted     OutcomeStatus = "not-started"
	OutcomeOK             OutcomeStatus = "ok"
	OutcomeSkippedPresent OutcomeStatus = "skipped-present"
	OutcomeNoLink         OutcomeStatus = "no-link"
	OutcomeFailed         OutcomeStatus = "failed"
)

// Done reports whether the status needs no further transfer work.
func (s OutcomeStatus) Done() bool {
	return s == OutcomeOK || s == OutcomeSkippedPresent || s == OutcomeNoLink
}

// DiskAssignment maps a course to its target volume. Written once, never
// overwritten by policy.
type DiskAssignment struct {
	Course     string    `json:"course"`
	Volume     string    `json:"volume"`
	AssignedAt time.Time `json:"assigned_at"`
}

// TransferOutcome is the durable record for one (course, asset) transfer.
type TransferOutcome struct {
	Course string        `json:"course"`
	Asset  AssetType     `json:"asset"`
	Status OutcomeStatus `json:"status"`
	Volume string        `json:"volume"`
	// Ref is the remote folder reference the outcome refers to. A duplicate
	// slot keeps its own ref; Note names the slot that carried the copy.
	Ref       string    `json:"ref,omitempty"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CourseState is the per-course rollup of transfer outcomes.
type CourseState string

const (
	CoursePending    CourseState = "pending"
	CourseInProgress CourseState = "in-progress"
	CourseComplete   CourseState = "complete"
	CoursePartial    CourseState = "partial"
	CourseFailed     CourseState = "failed"
	CourseSkipped    CourseState = "skipped"
)

// CourseResult summarizes one orchestrator pass over a course.
type CourseResult struct {
	Course   string
	Volume   string
	State    CourseState
	Outcomes map[AssetType]TransferOutcome
	// Reason explains a skipped course (low space, no assignment).
	Reason string
}

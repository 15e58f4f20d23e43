package common

import "fmt"

var (
	// Fatal class: these abort the run immediately.
	ErrStatusStoreCorrupt   = fmt.Errorf("status store is corrupt")
	ErrNoVolumesConfigured  = fmt.Errorf("no volumes configured")
	ErrManifestUnavailable  = fmt.Errorf("manifest unavailable and no cached copy")
	ErrManifestSchemaBroken = fmt.Errorf("manifest header does not satisfy the column schema")

	ErrAssignmentNotFound = fmt.Errorf("assignment not found")
	ErrScanAlreadyStarted = fmt.Errorf("index scan has already started")
	ErrInsufficientSpace  = fmt.Errorf("insufficient free space")
	ErrCourseNotAssigned  = fmt.Errorf("course has no disk assignment")
)

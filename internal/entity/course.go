package entity

import "strings"

// AssetType is one of the six fixed categories of course material.
type AssetType string

const (
	AssetCourseOutline   AssetType = "Course Outline"
	AssetPPTs            AssetType = "PPTs"
	AssetWrittenAssets   AssetType = "Written Assets"
	AssetFinalVideos     AssetType = "Final Videos"
	AssetRawVideos       AssetType = "Raw Videos"
	AssetCourseArtifacts AssetType = "Course Artifacts"
)

// AssetOrder is the fixed processing order for all per-asset operations.
// Transfer outcomes are persisted in exactly this order.
var AssetOrder = []AssetType{
	AssetCourseOutline,
	AssetPPTs,
	AssetWrittenAssets,
	AssetFinalVideos,
	AssetRawVideos,
	AssetCourseArtifacts,
}

const (
	CourseStatusCompleted    = "Completed"
	CourseStatusInProduction = "In Production"
)

// Course is one row of the normalized manifest. Courses are materialized
// fresh on every run and never mutated.
type Course struct {
	Name     string
	Semester string
	Term     string
	Status   string
	// Links maps an asset type to its remote folder reference.
	// A missing entry means the manifest row has no link for that slot.
	Links map[AssetType]string
}

// Key returns the case-insensitive identity of the course.
func (c *Course) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// Link returns the remote reference for an asset type, if present.
func (c *Course) Link(at AssetType) (string, bool) {
	ref, ok := c.Links[at]
	if !ok || strings.TrimSpace(ref) == "" {
		return "", false
	}

	return ref, true
}

// HasLinks reports whether any of the six slots carries a remote reference.
func (c *Course) HasLinks() bool {
	for _, at := range AssetOrder {
		if _, ok := c.Link(at); ok {
			return true
		}
	}

	return false
}

package entity

import (
	"path"
	"strings"
	"time"
)

// IndexEntry is one filesystem path discovered during a scan.
type IndexEntry struct {
	// RelPath is the slash-separated path relative to the root the entry was
	// found under.
	RelPath string `json:"path"`
	// Name is the base name of the entry, lowercased.
	Name string `json:"name"`
	// IsDir marks directory entries. Course folders are matched on these.
	IsDir bool `json:"is_dir"`
	// Depth counts path separators in RelPath; top-level entries have depth 0.
	Depth int `json:"depth"`
}

// Descriptor is optional metadata read from a course.md file inside an
// on-disk course folder. Aliases give the matcher extra names to score.
type Descriptor struct {
	RelPath string   `json:"path"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases,omitempty"`
	Enabled bool     `json:"enabled"`
}

// IndexPartition holds everything found under a single root. An index built
// for root R never contains paths outside R.
type IndexPartition struct {
	Root        string       `json:"root"`
	Entries     []IndexEntry `json:"entries"`
	Descriptors []Descriptor `json:"descriptors,omitempty"`
	// Warning is set when the root could not be fully scanned.
	Warning string `json:"warning,omitempty"`
}

// DriveIndex is the flat, queryable inventory of every mounted root.
type DriveIndex struct {
	// Fingerprint identifies the root set the index was built for.
	Fingerprint string                     `json:"fingerprint"`
	CreatedAt   time.Time                  `json:"created_at"`
	Roots       []string                   `json:"roots"`
	Partitions  map[string]*IndexPartition `json:"partitions"`
}

// DirCandidate is a directory offered to the fuzzy matcher as a potential
// course folder, together with any descriptor aliases declared inside it.
type DirCandidate struct {
	Root    string
	RelPath string
	Name    string
	Aliases []string
}

// Dirs returns every directory entry across all partitions, in root order.
func (d *DriveIndex) Dirs() []DirCandidate {
	var out []DirCandidate
	for _, root := range d.Roots {
		part, ok := d.Partitions[root]
		if !ok {
			continue
		}

		descByDir := make(map[string]*Descriptor, len(part.Descriptors))
		for i := range part.Descriptors {
			descByDir[part.Descriptors[i].RelPath] = &part.Descriptors[i]
		}

		for _, e := range part.Entries {
			if !e.IsDir {
				continue
			}

			cand := DirCandidate{
				Root:    root,
				RelPath: e.RelPath,
				Name:    e.Name,
			}
			if desc, exists := descByDir[e.RelPath]; exists {
				cand.Aliases = desc.Aliases
			}

			out = append(out, cand)
		}
	}

	return out
}

// ChildDirs returns the directories directly below relPath within root.
func (d *DriveIndex) ChildDirs(root, relPath string) []DirCandidate {
	part, ok := d.Partitions[root]
	if !ok {
		return nil
	}

	var out []DirCandidate
	for _, e := range part.Entries {
		if !e.IsDir || path.Dir(e.RelPath) != relPath {
			continue
		}

		if !strings.HasPrefix(e.RelPath, relPath+"/") {
			continue
		}

		out = append(out, DirCandidate{
			Root:    root,
			RelPath: e.RelPath,
			Name:    e.Name,
		})
	}

	return out
}

// EntryCount returns the total number of entries across all partitions.
func (d *DriveIndex) EntryCount() int {
	var n int
	for _, part := range d.Partitions {
		n += len(part.Entries)
	}

	return n
}

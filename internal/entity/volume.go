package entity

import "path/filepath"

// Volume is one configured target disk.
type Volume struct {
	// Name identifies the volume in assignment records. It must stay stable
	// across runs even if the mount point moves.
	Name string `yaml:"name"`
	// Mount is the filesystem path where the volume is mounted.
	Mount string `yaml:"mount"`
	// CourseRoot is the subpath on the volume under which course folders live.
	CourseRoot string `yaml:"course_root"`
}

// Root returns the directory holding all course folders on this volume.
func (v *Volume) Root() string {
	return filepath.Join(v.Mount, v.CourseRoot)
}

// CourseDir returns the directory for one course folder name on this volume.
func (v *Volume) CourseDir(folderName string) string {
	return filepath.Join(v.Root(), folderName)
}

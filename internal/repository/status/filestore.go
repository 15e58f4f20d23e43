package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/spf13/afero"
)

const (
	assignmentsFile = "assignments.json"
	outcomesFile    = "outcomes.json"
)

type assignmentTable struct {
	Courses map[string]entity.DiskAssignment `json:"courses"`
}

type outcomeTable struct {
	Courses map[string]map[entity.AssetType]entity.TransferOutcome `json:"courses"`
}

// fileStore keeps both tables as JSON files. Every mutation rewrites the
// affected table to a temp file and renames it over the old one, so a crash
// leaves either the previous or the new table, never a torn write.
type fileStore struct {
	mu          sync.Mutex
	fs          afero.Fs
	dir         string
	assignments assignmentTable
	outcomes    outcomeTable
	log         *slog.Logger
}

func NewFileStore(dir string, log *slog.Logger) (*fileStore, error) {
	return NewFileStoreWithFS(afero.NewOsFs(), dir, log)
}

func NewFileStoreWithFS(fsys afero.Fs, dir string, log *slog.Logger) (*fileStore, error) {
	s := &fileStore{
		fs:  fsys,
		dir: dir,
		log: log.With(slog.String("item", "FileStatusStore")),
	}

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create state dir %s: %w", dir, err)
	}

	if err := loadTable(fsys, filepath.Join(dir, assignmentsFile), &s.assignments); err != nil {
		return nil, err
	}
	if err := loadTable(fsys, filepath.Join(dir, outcomesFile), &s.outcomes); err != nil {
		return nil, err
	}

	if s.assignments.Courses == nil {
		s.assignments.Courses = make(map[string]entity.DiskAssignment)
	}
	if s.outcomes.Courses == nil {
		s.outcomes.Courses = make(map[string]map[entity.AssetType]entity.TransferOutcome)
	}

	return s, nil
}

func loadTable(fsys afero.Fs, path string, v any) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		// A missing table is a fresh store.
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrStatusStoreCorrupt, path, err)
	}

	return nil
}

func (s *fileStore) Assignment(_ context.Context, courseKey string) (entity.DiskAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments.Courses[normKey(courseKey)]
	if !ok {
		return entity.DiskAssignment{}, common.ErrAssignmentNotFound
	}

	return a, nil
}

func (s *fileStore) Assignments(_ context.Context) (map[string]entity.DiskAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]entity.DiskAssignment, len(s.assignments.Courses))
	for k, v := range s.assignments.Courses {
		out[k] = v
	}

	return out, nil
}

func (s *fileStore) SaveAssignment(_ context.Context, a entity.DiskAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignments.Courses[normKey(a.Course)] = a

	return s.persist(assignmentsFile, &s.assignments)
}

func (s *fileStore) Outcomes(_ context.Context, courseKey string) (map[entity.AssetType]entity.TransferOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[entity.AssetType]entity.TransferOutcome)
	for at, o := range s.outcomes.Courses[normKey(courseKey)] {
		out[at] = o
	}

	return out, nil
}

func (s *fileStore) AllOutcomes(_ context.Context) (map[string]map[entity.AssetType]entity.TransferOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[entity.AssetType]entity.TransferOutcome, len(s.outcomes.Courses))
	for key, row := range s.outcomes.Courses {
		cp := make(map[entity.AssetType]entity.TransferOutcome, len(row))
		for at, o := range row {
			cp[at] = o
		}
		out[key] = cp
	}

	return out, nil
}

func (s *fileStore) SaveOutcome(_ context.Context, o entity.TransferOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normKey(o.Course)
	row, ok := s.outcomes.Courses[key]
	if !ok {
		row = make(map[entity.AssetType]entity.TransferOutcome)
		s.outcomes.Courses[key] = row
	}
	row[o.Asset] = o

	return s.persist(outcomesFile, &s.outcomes)
}

func (s *fileStore) persist(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp." + timestampSuffix()

	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", tmp, err)
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("cannot replace %s: %w", path, err)
	}

	return nil
}

func timestampSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func normKey(course string) string {
	return strings.ToLower(strings.TrimSpace(course))
}

package index

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/coursevault/coursevault/internal/adapter/descriptor"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.ScanConfig {
	return &config.ScanConfig{
		CacheDir:       "/cache",
		CacheMaxAgeHrs: 24,
		DescFileName:   "course.md",
	}
}

func newTestIndexer(fs afero.Fs, now *time.Time) *Indexer {
	clock := func() time.Time { return *now }

	return NewWithFS(fs, descriptor.NewParser(), testConfig(), clock, slog.Default())
}

func seedFS(t *testing.T, fs afero.Fs) {
	t.Helper()

	require.NoError(t, fs.MkdirAll("/mnt/a/Discrete Mathematics/Final Videos", 0o755))
	require.NoError(t, fs.MkdirAll("/mnt/a/Writing Practice", 0o755))
	require.NoError(t, fs.MkdirAll("/mnt/b/Linear Algebra/PPTs", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/mnt/a/Discrete Mathematics/Final Videos/week1.mp4", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mnt/b/Linear Algebra/course.md",
		[]byte("---\ntitle: Linear Algebra\naliases:\n  - MATH-101\n---\n"), 0o644))
}

func TestBuildOrLoadScansAllRoots(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ix := newTestIndexer(fs, &now)

	idx, err := ix.BuildOrLoad(context.Background(), []string{"/mnt/a", "/mnt/b"}, false)
	require.NoError(t, err)

	require.Len(t, idx.Partitions, 2)
	assert.NotEmpty(t, idx.Fingerprint)

	// Every partition only holds paths under its own root (relative paths).
	for root, part := range idx.Partitions {
		assert.Equal(t, root, part.Root)
		for _, e := range part.Entries {
			assert.NotContains(t, e.RelPath, "..")
		}
	}

	dirs := idx.Dirs()
	names := make(map[string]bool)
	for _, d := range dirs {
		names[d.Name] = true
	}
	assert.True(t, names["discrete mathematics"])
	assert.True(t, names["linear algebra"])
	assert.True(t, names["writing practice"])
}

func TestBuildOrLoadReadsDescriptorAliases(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Now()
	ix := newTestIndexer(fs, &now)

	idx, err := ix.BuildOrLoad(context.Background(), []string{"/mnt/b"}, false)
	require.NoError(t, err)

	part := idx.Partitions["/mnt/b"]
	require.NotNil(t, part)
	require.Len(t, part.Descriptors, 1)
	assert.Equal(t, "Linear Algebra", part.Descriptors[0].Title)
	assert.Equal(t, []string{"MATH-101"}, part.Descriptors[0].Aliases)
	assert.Equal(t, "Linear Algebra", part.Descriptors[0].RelPath)
}

func TestBuildOrLoadUsesFreshCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ix := newTestIndexer(fs, &now)
	roots := []string{"/mnt/a", "/mnt/b"}

	first, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)

	// New content appears, but the cache is still fresh: same index returned.
	require.NoError(t, fs.MkdirAll("/mnt/a/New Course", 0o755))
	now = now.Add(1 * time.Hour)

	second, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.EntryCount(), second.EntryCount())
}

func TestBuildOrLoadRescansWhenStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ix := newTestIndexer(fs, &now)
	roots := []string{"/mnt/a"}

	first, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)

	now = now.Add(25 * time.Hour)

	second, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

func TestBuildOrLoadForceRefresh(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ix := newTestIndexer(fs, &now)
	roots := []string{"/mnt/a"}

	_, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)

	require.NoError(t, fs.MkdirAll("/mnt/a/New Course", 0o755))
	now = now.Add(time.Minute)

	idx, err := ix.BuildOrLoad(context.Background(), roots, true)
	require.NoError(t, err)

	var found bool
	for _, d := range idx.Dirs() {
		if d.Name == "new course" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildOrLoadDifferentRootSetBypassesCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Now()
	ix := newTestIndexer(fs, &now)

	a, err := ix.BuildOrLoad(context.Background(), []string{"/mnt/a"}, false)
	require.NoError(t, err)

	both, err := ix.BuildOrLoad(context.Background(), []string{"/mnt/a", "/mnt/b"}, false)
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint, both.Fingerprint)
	assert.Len(t, both.Partitions, 2)
}

func TestBuildOrLoadUnreadableRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Now()
	ix := newTestIndexer(fs, &now)

	idx, err := ix.BuildOrLoad(context.Background(), []string{"/mnt/a", "/mnt/gone"}, false)
	require.NoError(t, err)

	part := idx.Partitions["/mnt/gone"]
	require.NotNil(t, part)
	assert.Empty(t, part.Entries)
	assert.NotEmpty(t, part.Warning)

	// The readable root is unaffected.
	assert.NotEmpty(t, idx.Partitions["/mnt/a"].Entries)
}

func TestInvalidateRemovesCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedFS(t, fs)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ix := newTestIndexer(fs, &now)
	roots := []string{"/mnt/a"}

	first, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)

	require.NoError(t, ix.Invalidate(roots))
	now = now.Add(time.Minute)

	second, err := ix.BuildOrLoad(context.Background(), roots, false)
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

package assign

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/repository/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	free map[string]uint64
}

func (f *fakeProber) FreeBytes(path string) (uint64, error) {
	return f.free[path], nil
}

func testVolumes() []entity.Volume {
	return []entity.Volume{
		{Name: "disk-a", Mount: "/mnt/a", CourseRoot: "Courses"},
		{Name: "disk-b", Mount: "/mnt/b", CourseRoot: "Courses"},
	}
}

func testService(t *testing.T, fs afero.Fs, prober SpaceProber, volumes []entity.Volume) (*Service, status.Store) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := status.NewFileStoreWithFS(afero.NewMemMapFs(), "/state", log)
	require.NoError(t, err)

	cfg := config.Default().Assign

	return NewWithFS(fs, store, volumes, &cfg, prober, time.Now, log), store
}

func TestAssignPicksMostFreeSpace(t *testing.T) {
	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 100 * gigabyte,
		"/mnt/b/Courses": 500 * gigabyte,
	}}
	svc, store := testService(t, afero.NewMemMapFs(), prober, testVolumes())

	vol, err := svc.Assign(context.Background(), &entity.Course{Name: "Discrete Mathematics"})
	require.NoError(t, err)
	assert.Equal(t, "disk-b", vol.Name)

	a, err := store.Assignment(context.Background(), "discrete mathematics")
	require.NoError(t, err)
	assert.Equal(t, "disk-b", a.Volume)
}

func TestAssignIsStable(t *testing.T) {
	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 100 * gigabyte,
		"/mnt/b/Courses": 500 * gigabyte,
	}}
	svc, _ := testService(t, afero.NewMemMapFs(), prober, testVolumes())

	course := &entity.Course{Name: "Discrete Mathematics"}
	first, err := svc.Assign(context.Background(), course)
	require.NoError(t, err)

	// The originally assigned volume keeps the course even after the
	// space picture flips.
	prober.free["/mnt/a/Courses"] = 900 * gigabyte
	prober.free["/mnt/b/Courses"] = 10 * gigabyte

	second, err := svc.Assign(context.Background(), course)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
}

func TestAssignAlternatesNearEqualVolumes(t *testing.T) {
	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 500 * gigabyte,
		"/mnt/b/Courses": 490 * gigabyte,
	}}
	svc, _ := testService(t, afero.NewMemMapFs(), prober, testVolumes())

	first, err := svc.Assign(context.Background(), &entity.Course{Name: "Course One"})
	require.NoError(t, err)
	second, err := svc.Assign(context.Background(), &entity.Course{Name: "Course Two"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name, "near-equal volumes must alternate")
}

func TestAssignClearWinnerDoesNotAlternate(t *testing.T) {
	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 500 * gigabyte,
		"/mnt/b/Courses": 100 * gigabyte,
	}}
	svc, _ := testService(t, afero.NewMemMapFs(), prober, testVolumes())

	for i, name := range []string{"Course One", "Course Two", "Course Three"} {
		vol, err := svc.Assign(context.Background(), &entity.Course{Name: name})
		require.NoError(t, err)
		assert.Equal(t, "disk-a", vol.Name, "course %d", i)
	}
}

func TestAssignReusesExistingFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/mnt/a/Courses/Linear Algebra", 0o755))

	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 10 * gigabyte,
		"/mnt/b/Courses": 900 * gigabyte,
	}}
	svc, _ := testService(t, fs, prober, testVolumes())

	vol, err := svc.Assign(context.Background(), &entity.Course{Name: "Linear Algebra"})
	require.NoError(t, err)
	assert.Equal(t, "disk-a", vol.Name, "existing folder wins over free space")
}

func TestAssignInsufficientSpace(t *testing.T) {
	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 1 * gigabyte,
		"/mnt/b/Courses": 2 * gigabyte,
	}}
	svc, _ := testService(t, afero.NewMemMapFs(), prober, testVolumes())

	_, err := svc.Assign(context.Background(), &entity.Course{Name: "Discrete Mathematics"})
	require.ErrorIs(t, err, common.ErrInsufficientSpace)
}

type flakyStore struct {
	status.Store
	fail bool
}

func (f *flakyStore) Assignment(ctx context.Context, courseKey string) (entity.DiskAssignment, error) {
	if f.fail {
		return entity.DiskAssignment{}, fmt.Errorf("dial tcp 127.0.0.1:6379: connection refused")
	}

	return f.Store.Assignment(ctx, courseKey)
}

func TestAssignPropagatesStoreErrors(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner, err := status.NewFileStoreWithFS(afero.NewMemMapFs(), "/state", log)
	require.NoError(t, err)
	store := &flakyStore{Store: inner}

	prober := &fakeProber{free: map[string]uint64{
		"/mnt/a/Courses": 100 * gigabyte,
		"/mnt/b/Courses": 500 * gigabyte,
	}}
	cfg := config.Default().Assign
	svc := NewWithFS(afero.NewMemMapFs(), store, testVolumes(), &cfg, prober, time.Now, log)

	course := &entity.Course{Name: "Discrete Mathematics"}
	first, err := svc.Assign(context.Background(), course)
	require.NoError(t, err)
	require.Equal(t, "disk-b", first.Name)

	// A store that cannot be read must surface the error; treating it as
	// "no assignment yet" would pick a fresh volume and overwrite the record.
	store.fail = true
	prober.free["/mnt/a/Courses"] = 900 * gigabyte
	prober.free["/mnt/b/Courses"] = 10 * gigabyte

	_, err = svc.Assign(context.Background(), course)
	require.Error(t, err)

	store.fail = false
	second, err := svc.Assign(context.Background(), course)
	require.NoError(t, err)
	assert.Equal(t, "disk-b", second.Name, "assigned volume must never change")
}

func TestAssignNoVolumes(t *testing.T) {
	svc, _ := testService(t, afero.NewMemMapFs(), &fakeProber{}, nil)

	_, err := svc.Assign(context.Background(), &entity.Course{Name: "X"})
	require.ErrorIs(t, err, common.ErrNoVolumesConfigured)
}

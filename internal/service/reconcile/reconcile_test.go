package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutcomes struct {
	rows map[string]map[entity.AssetType]entity.TransferOutcome
}

func (f *fakeOutcomes) AllOutcomes(_ context.Context) (map[string]map[entity.AssetType]entity.TransferOutcome, error) {
	return f.rows, nil
}

type fakeChecker struct {
	verdicts map[string]entity.RemoteStatus
	links    []string
}

func (f *fakeChecker) Check(_ context.Context, links []string) map[string]entity.RemoteStatus {
	f.links = links

	return f.verdicts
}

func testIndex() *entity.DriveIndex {
	return &entity.DriveIndex{
		Roots: []string{"/mnt/a"},
		Partitions: map[string]*entity.IndexPartition{
			"/mnt/a": {
				Root: "/mnt/a",
				Entries: []entity.IndexEntry{
					{RelPath: "Discrete Mathematics", Name: "discrete mathematics", IsDir: true},
					{RelPath: "Discrete Mathematics/Final Videos", Name: "final videos", IsDir: true, Depth: 1},
					{RelPath: "Discrete Mathematics/PPT Decks", Name: "ppt decks", IsDir: true, Depth: 1},
					{RelPath: "Discrete Mathematics/notes.txt", Name: "notes.txt", Depth: 1},
				},
			},
		},
	}
}

func testService(outcomes *fakeOutcomes, checker LinkChecker) *Service {
	cfg := config.Default().Match
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(outcomes, checker, &cfg, log)
}

func record(t *testing.T, avail *entity.CourseAvailability, at entity.AssetType) entity.AvailabilityRecord {
	t.Helper()

	for _, rec := range avail.Records {
		if rec.Asset == at {
			return rec
		}
	}
	t.Fatalf("no record for %s", at)

	return entity.AvailabilityRecord{}
}

func TestReconcileFindsLocalFolders(t *testing.T) {
	course := &entity.Course{
		Name: "Discrete Math",
		Links: map[entity.AssetType]string{
			entity.AssetFinalVideos: "https://drive.google.com/drive/folders/abc123def456ghi789jkl0mno",
		},
	}
	checker := &fakeChecker{verdicts: map[string]entity.RemoteStatus{
		"https://drive.google.com/drive/folders/abc123def456ghi789jkl0mno": entity.RemoteAvailable,
	}}
	svc := testService(&fakeOutcomes{}, checker)

	avails, err := svc.Reconcile(context.Background(), []*entity.Course{course}, testIndex())
	require.NoError(t, err)
	require.Len(t, avails, 1)

	fv := record(t, avails[0], entity.AssetFinalVideos)
	assert.Equal(t, entity.LocalFound, fv.LocalStatus)
	assert.Equal(t, "/mnt/a/Discrete Mathematics/Final Videos", fv.LocalPath)
	assert.Equal(t, 100, fv.MatchScore)
	assert.Equal(t, entity.RemoteAvailable, fv.RemoteStatus)

	ppt := record(t, avails[0], entity.AssetPPTs)
	assert.Equal(t, entity.LocalFound, ppt.LocalStatus, "fuzzy subfolder match")
	assert.Equal(t, entity.RemoteAbsentLink, ppt.RemoteStatus)

	raw := record(t, avails[0], entity.AssetRawVideos)
	assert.Equal(t, entity.LocalAbsent, raw.LocalStatus)

	assert.Equal(t, entity.RowPartial, avails[0].Class)
	assert.Equal(t, checker.links, []string{"https://drive.google.com/drive/folders/abc123def456ghi789jkl0mno"})
}

func TestReconcilePriorOutcomesWin(t *testing.T) {
	course := &entity.Course{Name: "Linear Algebra"}
	outcomes := &fakeOutcomes{rows: map[string]map[entity.AssetType]entity.TransferOutcome{
		"linear algebra": {
			entity.AssetRawVideos:     {Asset: entity.AssetRawVideos, Status: entity.OutcomeOK},
			entity.AssetCourseOutline: {Asset: entity.AssetCourseOutline, Status: entity.OutcomeSkippedPresent},
			entity.AssetPPTs:          {Asset: entity.AssetPPTs, Status: entity.OutcomeFailed},
		},
	}}
	svc := testService(outcomes, nil)

	avails, err := svc.Reconcile(context.Background(), []*entity.Course{course}, testIndex())
	require.NoError(t, err)

	assert.Equal(t, entity.LocalFoundViaTransfer, record(t, avails[0], entity.AssetRawVideos).LocalStatus)
	assert.Equal(t, entity.LocalFound, record(t, avails[0], entity.AssetCourseOutline).LocalStatus)
	assert.Equal(t, entity.LocalAbsent, record(t, avails[0], entity.AssetPPTs).LocalStatus,
		"failed outcomes do not count as present")
}

func TestReconcileRowClasses(t *testing.T) {
	allOK := make(map[entity.AssetType]entity.TransferOutcome)
	for _, at := range entity.AssetOrder {
		allOK[at] = entity.TransferOutcome{Asset: at, Status: entity.OutcomeOK}
	}

	outcomes := &fakeOutcomes{rows: map[string]map[entity.AssetType]entity.TransferOutcome{
		"quantum chemistry": allOK,
	}}
	svc := testService(outcomes, nil)

	courses := []*entity.Course{
		{Name: "Quantum Chemistry"},
		{Name: "Underwater Basket Weaving"},
	}

	avails, err := svc.Reconcile(context.Background(), courses, testIndex())
	require.NoError(t, err)
	require.Len(t, avails, 2)

	assert.Equal(t, entity.RowComplete, avails[0].Class)
	assert.Equal(t, entity.RowNone, avails[1].Class)
}

func TestReconcileAssetTypesDoNotCrossMatch(t *testing.T) {
	course := &entity.Course{Name: "Discrete Mathematics"}
	svc := testService(&fakeOutcomes{}, nil)

	avails, err := svc.Reconcile(context.Background(), []*entity.Course{course}, testIndex())
	require.NoError(t, err)
	require.Len(t, avails, 1)

	fv := record(t, avails[0], entity.AssetFinalVideos)
	assert.Equal(t, entity.LocalFound, fv.LocalStatus)

	// "Final Videos" and "Raw Videos" are similar enough to fool a plain
	// similarity score; the existing folder must satisfy only its own slot.
	raw := record(t, avails[0], entity.AssetRawVideos)
	assert.Equal(t, entity.LocalAbsent, raw.LocalStatus)
	assert.Empty(t, raw.LocalPath)
}

func TestReconcileNoCheckerLeavesUnchecked(t *testing.T) {
	course := &entity.Course{
		Name:  "Discrete Mathematics",
		Links: map[entity.AssetType]string{entity.AssetRawVideos: "https://drive.google.com/drive/folders/xyz"},
	}
	svc := testService(&fakeOutcomes{}, nil)

	avails, err := svc.Reconcile(context.Background(), []*entity.Course{course}, testIndex())
	require.NoError(t, err)

	assert.Equal(t, entity.RemoteUnchecked, record(t, avails[0], entity.AssetRawVideos).RemoteStatus)
}

func TestReconcileBelowThreshold(t *testing.T) {
	course := &entity.Course{Name: "Organic Chemistry Lab"}
	svc := testService(&fakeOutcomes{}, nil)

	avails, err := svc.Reconcile(context.Background(), []*entity.Course{course}, testIndex())
	require.NoError(t, err)

	for _, rec := range avails[0].Records {
		assert.Equal(t, entity.LocalAbsent, rec.LocalStatus)
	}
	assert.Equal(t, entity.RowNone, avails[0].Class)
}

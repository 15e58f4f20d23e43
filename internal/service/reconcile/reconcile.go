// Package reconcile joins the three evidence sources for every course: the
// disk index, the persisted transfer outcomes and the remote link verdicts.
// The result is a pure availability table; nothing here mutates state.
package reconcile

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/match"
)

// minCandidateLen drops folder names too short to match anything
// meaningfully, like single-letter sorting buckets.
const minCandidateLen = 3

type LinkChecker interface {
	Check(ctx context.Context, links []string) map[string]entity.RemoteStatus
}

type OutcomeSource interface {
	AllOutcomes(ctx context.Context) (map[string]map[entity.AssetType]entity.TransferOutcome, error)
}

type Service struct {
	outcomes OutcomeSource
	// checker is nil when link checking is disabled; all links then stay
	// unchecked.
	checker LinkChecker
	cfg     *config.MatchConfig
	log     *slog.Logger
}

func New(outcomes OutcomeSource, checker LinkChecker, cfg *config.MatchConfig, log *slog.Logger) *Service {
	return &Service{
		outcomes: outcomes,
		checker:  checker,
		cfg:      cfg,
		log:      log.With(slog.String("item", "ReconcileService")),
	}
}

// courseDirMatch binds a matched course folder to its match score.
type courseDirMatch struct {
	dir   entity.DirCandidate
	score int
}

// Reconcile builds the availability table for every course against the given
// index. Persisted outcomes are authoritative over the index: an asset the
// tool itself fetched counts as present even if the folder scan missed it.
func (s *Service) Reconcile(ctx context.Context, courses []*entity.Course, idx *entity.DriveIndex) ([]*entity.CourseAvailability, error) {
	prior, err := s.outcomes.AllOutcomes(ctx)
	if err != nil {
		return nil, err
	}

	verdicts := s.checkLinks(ctx, courses)

	dirs := idx.Dirs()
	set, owners := buildCandidates(dirs)

	out := make([]*entity.CourseAvailability, 0, len(courses))
	for _, course := range courses {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out = append(out, s.reconcileCourse(course, idx, dirs, set, owners, prior[course.Key()], verdicts))
	}

	return out, nil
}

func (s *Service) checkLinks(ctx context.Context, courses []*entity.Course) map[string]entity.RemoteStatus {
	if s.checker == nil {
		return nil
	}

	var links []string
	for _, course := range courses {
		for _, at := range entity.AssetOrder {
			if link, ok := course.Link(at); ok {
				links = append(links, link)
			}
		}
	}

	return s.checker.Check(ctx, links)
}

// buildCandidates flattens every directory and its aliases into one
// candidate set. owners maps a candidate index back to its directory.
func buildCandidates(dirs []entity.DirCandidate) (*match.CandidateSet, []int) {
	var names []string
	var owners []int

	for i, d := range dirs {
		for _, name := range append([]string{d.Name}, d.Aliases...) {
			if len(match.Normalize(name)) < minCandidateLen {
				continue
			}

			names = append(names, name)
			owners = append(owners, i)
		}
	}

	return match.NewCandidateSet(names), owners
}

func (s *Service) reconcileCourse(
	course *entity.Course,
	idx *entity.DriveIndex,
	dirs []entity.DirCandidate,
	set *match.CandidateSet,
	owners []int,
	prior map[entity.AssetType]entity.TransferOutcome,
	verdicts map[string]entity.RemoteStatus,
) *entity.CourseAvailability {
	avail := &entity.CourseAvailability{
		Course: course.Name,
		Status: course.Status,
	}

	var courseDir *courseDirMatch
	if best, ok := set.FindBest(course.Name, s.cfg.Threshold); ok {
		courseDir = &courseDirMatch{dir: dirs[owners[best.Index]], score: best.Score}
		s.log.Debug("Course folder matched",
			slog.String("course", course.Name),
			slog.String("folder", courseDir.dir.RelPath),
			slog.Int("score", best.Score))
	}

	satisfied := 0
	for _, at := range entity.AssetOrder {
		rec := s.reconcileAsset(course, at, idx, courseDir, prior, verdicts)
		if rec.Satisfied() {
			satisfied++
		}

		avail.Records = append(avail.Records, rec)
	}

	switch satisfied {
	case len(entity.AssetOrder):
		avail.Class = entity.RowComplete
	case 0:
		avail.Class = entity.RowNone
	default:
		avail.Class = entity.RowPartial
	}

	return avail
}

func (s *Service) reconcileAsset(
	course *entity.Course,
	at entity.AssetType,
	idx *entity.DriveIndex,
	courseDir *courseDirMatch,
	prior map[entity.AssetType]entity.TransferOutcome,
	verdicts map[string]entity.RemoteStatus,
) entity.AvailabilityRecord {
	rec := entity.AvailabilityRecord{
		Course:       course.Name,
		Asset:        at,
		LocalStatus:  entity.LocalAbsent,
		RemoteStatus: entity.RemoteUnchecked,
	}

	if o, ok := prior[at]; ok {
		switch o.Status {
		case entity.OutcomeOK:
			rec.LocalStatus = entity.LocalFoundViaTransfer
		case entity.OutcomeSkippedPresent:
			rec.LocalStatus = entity.LocalFound
		}
	}

	if rec.LocalStatus == entity.LocalAbsent && courseDir != nil {
		if sub, score, ok := s.findAssetDir(idx, courseDir.dir, at); ok {
			rec.LocalStatus = entity.LocalFound
			rec.LocalPath = path.Join(sub.Root, sub.RelPath)
			rec.MatchScore = score
		}
	}

	link, has := course.Link(at)
	if !has {
		rec.RemoteStatus = entity.RemoteAbsentLink
	} else if v, ok := verdicts[link]; ok {
		rec.RemoteStatus = v
	}

	return rec
}

// assetHints anchor each asset type to the keyword operators put in these
// folder names. Asset-type names are too close to each other for plain
// similarity scoring ("Raw Videos" vs "Final Videos" clears any reasonable
// threshold), so a child only qualifies when one of its tokens starts with
// the hint.
var assetHints = map[entity.AssetType]string{
	entity.AssetCourseOutline:   "outline",
	entity.AssetPPTs:            "ppt",
	entity.AssetWrittenAssets:   "written",
	entity.AssetFinalVideos:     "final",
	entity.AssetRawVideos:       "raw",
	entity.AssetCourseArtifacts: "artifact",
}

// findAssetDir looks for the asset subfolder below the matched course
// folder. An exact normalized name wins; otherwise a child carrying the
// asset's hint keyword does, best similarity first.
func (s *Service) findAssetDir(idx *entity.DriveIndex, dir entity.DirCandidate, at entity.AssetType) (entity.DirCandidate, int, bool) {
	children := idx.ChildDirs(dir.Root, dir.RelPath)
	if len(children) == 0 {
		return entity.DirCandidate{}, 0, false
	}

	want := match.Normalize(string(at))
	for _, child := range children {
		if match.Normalize(child.Name) == want {
			return child, 100, true
		}
	}

	hint := assetHints[at]
	best := -1
	bestScore := 0
	for i, child := range children {
		if !hasTokenPrefix(match.Normalize(child.Name), hint) {
			continue
		}

		if score := match.Score(string(at), child.Name); best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return entity.DirCandidate{}, 0, false
	}

	return children[best], bestScore, true
}

func hasTokenPrefix(norm, hint string) bool {
	if hint == "" {
		return false
	}

	for _, tok := range strings.Fields(norm) {
		if strings.HasPrefix(tok, hint) {
			return true
		}
	}

	return false
}

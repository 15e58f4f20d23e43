// Package transfer walks every course through its six asset slots and pulls
// the missing ones from the remote. Every slot outcome is persisted the
// moment it is known, so an interrupted run resumes where it stopped instead
// of starting over.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coursevault/coursevault/internal/adapter/linkcheck"
	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/repository/status"
	"github.com/coursevault/coursevault/internal/service/assign"
	"github.com/coursevault/coursevault/internal/util"
	"github.com/spf13/afero"
)

// markerFileName marks an asset folder whose transfer finished cleanly.
// A non-empty folder without it is still treated as present, but logged.
const markerFileName = ".coursevault-complete"

const gigabyte = 1 << 30

type Assigner interface {
	Assign(ctx context.Context, course *entity.Course) (entity.Volume, error)
}

type Transferer interface {
	Copy(ctx context.Context, ref, dest string) error
}

// Options controls one orchestrator pass.
type Options struct {
	DryRun bool
	// Filter keeps only courses whose name contains one of the terms,
	// case-insensitively. Empty means all courses.
	Filter []string
}

type Orchestrator struct {
	fs       afero.Fs
	store    status.Store
	assigner Assigner
	copier   Transferer
	prober   assign.SpaceProber
	cfg      *config.TransferConfig
	minFree  uint64
	clock    func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	volLocks map[string]*sync.Mutex
}

func New(store status.Store, assigner Assigner, copier Transferer, prober assign.SpaceProber,
	cfg *config.TransferConfig, assignCfg *config.AssignConfig, log *slog.Logger) *Orchestrator {
	return NewWithFS(afero.NewOsFs(), store, assigner, copier, prober, cfg, assignCfg, time.Now, log)
}

func NewWithFS(fsys afero.Fs, store status.Store, assigner Assigner, copier Transferer,
	prober assign.SpaceProber, cfg *config.TransferConfig, assignCfg *config.AssignConfig,
	clock func() time.Time, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		fs:       fsys,
		store:    store,
		assigner: assigner,
		copier:   copier,
		prober:   prober,
		cfg:      cfg,
		minFree:  uint64(assignCfg.MinFreeGB * gigabyte),
		clock:    clock,
		log:      log.With(slog.String("item", "TransferService")),
		volLocks: make(map[string]*sync.Mutex),
	}
}

// Run processes the given courses and returns one result per course, in
// input order. Courses on different volumes run concurrently up to the
// worker bound; courses on the same volume are serialized.
func (o *Orchestrator) Run(ctx context.Context, courses []*entity.Course, opts Options) ([]entity.CourseResult, error) {
	selected := filterCourses(courses, opts.Filter)
	if len(selected) == 0 {
		o.log.Info("No courses selected")

		return nil, nil
	}

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	in := make(chan *entity.Course, len(selected))
	out := make(chan entity.CourseResult, len(selected))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for course := range in {
				out <- o.runCourse(ctx, course, opts.DryRun)
			}
		}()
	}

	for _, course := range selected {
		in <- course
	}
	close(in)

	wg.Wait()
	close(out)

	byKey := make(map[string]entity.CourseResult, len(selected))
	for res := range out {
		byKey[strings.ToLower(strings.TrimSpace(res.Course))] = res
	}

	results := make([]entity.CourseResult, 0, len(selected))
	for _, course := range selected {
		results = append(results, byKey[course.Key()])
	}

	return results, ctx.Err()
}

func filterCourses(courses []*entity.Course, terms []string) []*entity.Course {
	if len(terms) == 0 {
		return courses
	}

	var out []*entity.Course
	for _, course := range courses {
		name := strings.ToLower(course.Name)
		for _, term := range terms {
			if strings.Contains(name, strings.ToLower(term)) {
				out = append(out, course)

				break
			}
		}
	}

	return out
}

func (o *Orchestrator) lockVolume(name string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.volLocks[name]; !ok {
		o.volLocks[name] = &sync.Mutex{}
	}

	return o.volLocks[name]
}

func (o *Orchestrator) runCourse(ctx context.Context, course *entity.Course, dryRun bool) entity.CourseResult {
	log := o.log.With(slog.String("course", course.Name))

	res := entity.CourseResult{
		Course:   course.Name,
		Outcomes: make(map[entity.AssetType]entity.TransferOutcome),
	}

	vol, err := o.assigner.Assign(ctx, course)
	if err != nil {
		res.Reason = err.Error()
		res.State = entity.CourseFailed
		if errorIsSkip(err) {
			res.State = entity.CourseSkipped
		}
		log.Warn("Course not processed", slog.Any("error", err))

		return res
	}
	res.Volume = vol.Name

	lock := o.lockVolume(vol.Name)
	lock.Lock()
	defer lock.Unlock()

	if free, err := o.prober.FreeBytes(vol.Root()); err == nil && free < o.minFree {
		res.State = entity.CourseSkipped
		res.Reason = fmt.Sprintf("volume %s below free-space floor (%s left)", vol.Name, util.HumanSize(free))
		log.Warn("Skipping course", slog.String("reason", res.Reason))

		return res
	}

	prior, err := o.store.Outcomes(ctx, course.Key())
	if err != nil {
		res.State = entity.CourseFailed
		res.Reason = fmt.Sprintf("cannot load outcomes: %v", err)

		return res
	}

	courseDir := vol.CourseDir(util.SanitizeName(course.Name))

	// seenRefs detects two slots of the same course pointing at the same
	// remote folder; the second slot is skipped instead of copied twice.
	seenRefs := make(map[string]entity.AssetType)

	for _, at := range entity.AssetOrder {
		if ctx.Err() != nil {
			res.State = entity.CoursePartial
			res.Reason = "interrupted"

			return res
		}

		outcome := o.runAsset(ctx, course, at, vol, courseDir, prior, seenRefs, dryRun, log)
		res.Outcomes[at] = outcome
	}

	res.State = rollup(res.Outcomes, dryRun)
	log.Info("Course processed", slog.String("state", string(res.State)))

	return res
}

func errorIsSkip(err error) bool {
	return errors.Is(err, common.ErrInsufficientSpace) || errors.Is(err, common.ErrNoVolumesConfigured)
}

func (o *Orchestrator) runAsset(
	ctx context.Context,
	course *entity.Course,
	at entity.AssetType,
	vol entity.Volume,
	courseDir string,
	prior map[entity.AssetType]entity.TransferOutcome,
	seenRefs map[string]entity.AssetType,
	dryRun bool,
	log *slog.Logger,
) entity.TransferOutcome {
	link, hasLink := course.Link(at)

	var ref string
	if hasLink {
		if r, ok := linkcheck.ExtractRef(link); ok {
			ref = r
		}
	}
	registerRef := func() {
		if ref != "" {
			if _, dup := seenRefs[ref]; !dup {
				seenRefs[ref] = at
			}
		}
	}

	if p, ok := prior[at]; ok && p.Status.Done() {
		registerRef()

		return p
	}

	outcome := entity.TransferOutcome{
		Course:    course.Key(),
		Asset:     at,
		Volume:    vol.Name,
		UpdatedAt: o.clock(),
	}

	if !hasLink {
		outcome.Status = entity.OutcomeNoLink

		return o.persist(ctx, outcome, dryRun, log)
	}

	if ref == "" {
		outcome.Status = entity.OutcomeFailed
		outcome.Note = "cannot extract folder reference from link"

		return o.persist(ctx, outcome, dryRun, log)
	}

	if first, dup := seenRefs[ref]; dup {
		outcome.Status = entity.OutcomeSkippedPresent
		outcome.Ref = ref
		outcome.Note = "duplicate of " + string(first)
		log.Info("Duplicate remote folder",
			slog.String("asset", string(at)), slog.String("first", string(first)))

		return o.persist(ctx, outcome, dryRun, log)
	}
	registerRef()

	dest := filepath.Join(courseDir, string(at))

	if present, marked := o.alreadyPresent(dest); present {
		outcome.Status = entity.OutcomeSkippedPresent
		outcome.Ref = ref
		if !marked {
			outcome.Note = "folder is non-empty but carries no completion marker"
			log.Warn("Treating unmarked non-empty folder as present",
				slog.String("asset", string(at)), slog.String("dest", dest))
		}

		return o.persist(ctx, outcome, dryRun, log)
	}

	if dryRun {
		outcome.Status = entity.OutcomeNotStarted
		outcome.Ref = ref
		outcome.Note = "dry-run"
		log.Info("Would transfer",
			slog.String("asset", string(at)), slog.String("dest", dest))

		return outcome
	}

	if err := o.fs.MkdirAll(dest, 0o755); err != nil {
		outcome.Status = entity.OutcomeFailed
		outcome.Note = fmt.Sprintf("cannot create destination: %v", err)

		return o.persist(ctx, outcome, dryRun, log)
	}

	log.Info("Transferring", slog.String("asset", string(at)), slog.String("dest", dest))

	if err := o.copier.Copy(ctx, ref, dest); err != nil {
		outcome.Status = entity.OutcomeFailed
		outcome.Note = err.Error()
		log.Error("Transfer failed", slog.String("asset", string(at)), slog.Any("error", err))

		return o.persist(ctx, outcome, dryRun, log)
	}

	o.writeMarker(dest, log)

	outcome.Status = entity.OutcomeOK
	outcome.Ref = ref

	return o.persist(ctx, outcome, dryRun, log)
}

// alreadyPresent reports whether dest holds any files, and whether the
// completion marker is among them.
func (o *Orchestrator) alreadyPresent(dest string) (present, marked bool) {
	entries, err := afero.ReadDir(o.fs, dest)
	if err != nil || len(entries) == 0 {
		return false, false
	}

	for _, e := range entries {
		if e.Name() == markerFileName {
			return true, true
		}
	}

	return true, false
}

func (o *Orchestrator) writeMarker(dest string, log *slog.Logger) {
	path := filepath.Join(dest, markerFileName)
	content := []byte(o.clock().Format(time.RFC3339) + "\n")
	if err := afero.WriteFile(o.fs, path, content, 0o644); err != nil {
		log.Warn("Cannot write completion marker", slog.String("path", path), slog.Any("error", err))
	}
}

func (o *Orchestrator) persist(ctx context.Context, outcome entity.TransferOutcome, dryRun bool, log *slog.Logger) entity.TransferOutcome {
	if dryRun {
		return outcome
	}

	if err := o.store.SaveOutcome(ctx, outcome); err != nil {
		log.Error("Cannot persist outcome",
			slog.String("asset", string(outcome.Asset)), slog.Any("error", err))
	}

	return outcome
}

// rollup classifies a course from its six outcomes. Complete means every
// slot needs no further work. Failed means something was attempted, nothing
// material landed: no-link slots count toward complete but never rescue a
// course whose only real transfers all failed.
func rollup(outcomes map[entity.AssetType]entity.TransferOutcome, dryRun bool) entity.CourseState {
	if dryRun {
		return entity.CoursePending
	}

	done, failed, present := 0, 0, 0
	for _, outcome := range outcomes {
		if outcome.Status.Done() {
			done++
		}

		switch outcome.Status {
		case entity.OutcomeOK, entity.OutcomeSkippedPresent:
			present++
		case entity.OutcomeFailed:
			failed++
		}
	}

	switch {
	case done == len(outcomes):
		return entity.CourseComplete
	case failed > 0 && present == 0:
		return entity.CourseFailed
	default:
		return entity.CoursePartial
	}
}

// Package assign decides which volume a course lands on and keeps that
// decision stable across runs. Priority order: a stored assignment, then a
// volume that already holds the course folder, then the volume with the most
// free space. Near-equal volumes alternate so big batches spread out.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/repository/status"
	"github.com/coursevault/coursevault/internal/util"
	"github.com/spf13/afero"
)

const gigabyte = 1 << 30

// SpaceProber reports free bytes on the filesystem holding path.
type SpaceProber interface {
	FreeBytes(path string) (uint64, error)
}

type Service struct {
	mu      sync.Mutex
	store   status.Store
	volumes []entity.Volume
	cfg     *config.AssignConfig
	prober  SpaceProber
	fs      afero.Fs
	clock   func() time.Time
	// rr alternates new assignments between near-equal volumes.
	rr  int
	log *slog.Logger
}

func New(store status.Store, volumes []entity.Volume, cfg *config.AssignConfig, prober SpaceProber, log *slog.Logger) *Service {
	return NewWithFS(afero.NewOsFs(), store, volumes, cfg, prober, time.Now, log)
}

func NewWithFS(fsys afero.Fs, store status.Store, volumes []entity.Volume, cfg *config.AssignConfig,
	prober SpaceProber, clock func() time.Time, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		volumes: volumes,
		cfg:     cfg,
		prober:  prober,
		fs:      fsys,
		clock:   clock,
		log:     log.With(slog.String("item", "AssignService")),
	}
}

// Assign returns the volume for a course, creating and persisting a new
// assignment when none exists. An existing assignment is never revised, even
// if its volume has since filled up.
func (s *Service) Assign(ctx context.Context, course *entity.Course) (entity.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.volumes) == 0 {
		return entity.Volume{}, common.ErrNoVolumesConfigured
	}

	a, err := s.store.Assignment(ctx, course.Key())
	switch {
	case err == nil:
		vol, ok := s.volumeByName(a.Volume)
		if !ok {
			return entity.Volume{}, fmt.Errorf("assigned volume %q is not configured", a.Volume)
		}

		return vol, nil
	case !errors.Is(err, common.ErrAssignmentNotFound):
		// A store that cannot answer is not a store with no record; deciding
		// a fresh volume here would overwrite the persisted assignment.
		return entity.Volume{}, fmt.Errorf("cannot read assignment for %s: %w", course.Key(), err)
	}

	if vol, ok := s.findExistingFolder(course); ok {
		s.log.Info("Course folder already exists, reusing volume",
			slog.String("course", course.Name), slog.String("volume", vol.Name))

		return vol, s.save(ctx, course, vol)
	}

	vol, err := s.pickBySpace(course)
	if err != nil {
		return entity.Volume{}, err
	}

	return vol, s.save(ctx, course, vol)
}

func (s *Service) save(ctx context.Context, course *entity.Course, vol entity.Volume) error {
	a := entity.DiskAssignment{
		Course:     course.Key(),
		Volume:     vol.Name,
		AssignedAt: s.clock(),
	}
	if err := s.store.SaveAssignment(ctx, a); err != nil {
		return fmt.Errorf("cannot persist assignment: %w", err)
	}

	return nil
}

func (s *Service) volumeByName(name string) (entity.Volume, bool) {
	for _, vol := range s.volumes {
		if vol.Name == name {
			return vol, true
		}
	}

	return entity.Volume{}, false
}

func (s *Service) findExistingFolder(course *entity.Course) (entity.Volume, bool) {
	folder := util.SanitizeName(course.Name)
	for _, vol := range s.volumes {
		exists, err := afero.DirExists(s.fs, vol.CourseDir(folder))
		if err == nil && exists {
			return vol, true
		}
	}

	return entity.Volume{}, false
}

type volumeSpace struct {
	vol  entity.Volume
	free uint64
}

func (s *Service) pickBySpace(course *entity.Course) (entity.Volume, error) {
	minFree := uint64(s.cfg.MinFreeGB * gigabyte)

	var candidates []volumeSpace
	for _, vol := range s.volumes {
		free, err := s.prober.FreeBytes(vol.Root())
		if err != nil {
			s.log.Warn("Cannot probe volume",
				slog.String("volume", vol.Name), slog.Any("error", err))

			continue
		}

		if free < minFree {
			s.log.Warn("Volume below free-space floor",
				slog.String("volume", vol.Name), slog.String("free", util.HumanSize(free)))

			continue
		}

		candidates = append(candidates, volumeSpace{vol: vol, free: free})
	}

	if len(candidates) == 0 {
		return entity.Volume{}, fmt.Errorf("%w: no volume can take course %q", common.ErrInsufficientSpace, course.Name)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].free > candidates[j].free
	})

	// Volumes within the epsilon ratio of the leader count as equally good;
	// those alternate round-robin instead of always winning on a few
	// spare bytes.
	leader := candidates[0].free
	near := 1
	for near < len(candidates) {
		if float64(leader) > s.cfg.EpsilonRatio*float64(candidates[near].free) {
			break
		}
		near++
	}

	pick := candidates[s.rr%near]
	if near > 1 {
		s.rr++
	}

	s.log.Info("Assigning course by free space",
		slog.String("course", course.Name),
		slog.String("volume", pick.vol.Name),
		slog.String("free", util.HumanSize(pick.free)))

	return pick.vol, nil
}

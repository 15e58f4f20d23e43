// Package index builds the DriveIndex: a recursive inventory of every
// configured storage root. Indexes are cached on disk keyed by the
// fingerprint of the root set, so changing the roots invalidates the cache
// implicitly.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/util"
	"github.com/spf13/afero"
)

// System directories that never hold course content.
var skipDirs = map[string]struct{}{
	"System Volume Information": {},
	"$RECYCLE.BIN":              {},
	"$Recycle.Bin":              {},
	"lost+found":                {},
}

type DescriptorParser interface {
	Parse(data []byte) (*entity.Descriptor, error)
}

type Clock func() time.Time

type Indexer struct {
	running atomic.Bool
	fs      afero.Fs
	parser  DescriptorParser
	cfg     *config.ScanConfig
	clock   Clock
	log     *slog.Logger
}

func New(parser DescriptorParser, cfg *config.ScanConfig, log *slog.Logger) *Indexer {
	return NewWithFS(afero.NewOsFs(), parser, cfg, time.Now, log)
}

func NewWithFS(fsys afero.Fs, parser DescriptorParser, cfg *config.ScanConfig, clock Clock, log *slog.Logger) *Indexer {
	return &Indexer{
		fs:     fsys,
		parser: parser,
		cfg:    cfg,
		clock:  clock,
		log:    log.With(slog.String("item", "Indexer")),
	}
}

// BuildOrLoad returns a cached index when it is fresh enough and was built
// for the same root set; otherwise it rescans every root.
func (i *Indexer) BuildOrLoad(ctx context.Context, roots []string, forceRefresh bool) (*entity.DriveIndex, error) {
	if !i.running.CompareAndSwap(false, true) {
		return nil, common.ErrScanAlreadyStarted
	}
	defer i.running.Store(false)

	fingerprint := util.Fingerprint(roots)

	if !forceRefresh {
		if idx := i.loadCache(fingerprint); idx != nil {
			return idx, nil
		}
	}

	idx, err := i.scan(ctx, roots, fingerprint)
	if err != nil {
		return nil, err
	}

	i.saveCache(idx)

	return idx, nil
}

// Invalidate drops the cached index for the given root set.
func (i *Indexer) Invalidate(roots []string) error {
	path := i.cachePath(util.Fingerprint(roots))
	if exists, _ := afero.Exists(i.fs, path); !exists {
		return nil
	}

	if err := i.fs.Remove(path); err != nil {
		return fmt.Errorf("cannot remove index cache %s: %w", path, err)
	}

	return nil
}

func (i *Indexer) scan(ctx context.Context, roots []string, fingerprint string) (*entity.DriveIndex, error) {
	if len(roots) == 0 {
		return nil, common.ErrNoVolumesConfigured
	}

	in := make(chan string, len(roots))
	out := make(chan *entity.IndexPartition, len(roots))

	for _, root := range roots {
		in <- root
	}
	close(in)

	var wg sync.WaitGroup
	wg.Add(len(roots))
	for n := 0; n < len(roots); n++ {
		go i.worker(ctx, n, in, out, &wg)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	idx := &entity.DriveIndex{
		Fingerprint: fingerprint,
		CreatedAt:   i.clock(),
		Roots:       roots,
		Partitions:  make(map[string]*entity.IndexPartition, len(roots)),
	}

	for part := range out {
		i.log.Info("Scanned root",
			slog.String("root", part.Root),
			slog.Int("entries", len(part.Entries)),
			slog.String("warning", part.Warning))
		idx.Partitions[part.Root] = part
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	return idx, nil
}

func (i *Indexer) worker(ctx context.Context, n int, in chan string, out chan *entity.IndexPartition, wg *sync.WaitGroup) {
	defer wg.Done()

	log := i.log.With(slog.Int("worker_id", n))

	for root := range in {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")

			return
		default:
		}

		out <- i.scanRoot(root, log)
	}
}

// scanRoot walks one root. Unreadable subtrees are skipped with a warning;
// an entirely unreadable root yields an empty partition, never an error.
func (i *Indexer) scanRoot(root string, log *slog.Logger) *entity.IndexPartition {
	part := &entity.IndexPartition{Root: root}

	if _, err := i.fs.Stat(root); err != nil {
		part.Warning = err.Error()
		log.Warn("Root is not readable", slog.String("root", root), slog.Any("error", err))

		return part
	}

	walkErr := afero.Walk(i.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			log.Warn("Cannot read path, skipping subtree", slog.String("path", path), slog.Any("error", err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if path == root {
			return nil
		}

		name := info.Name()
		if info.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		part.Entries = append(part.Entries, entity.IndexEntry{
			RelPath: rel,
			Name:    strings.ToLower(name),
			IsDir:   info.IsDir(),
			Depth:   strings.Count(rel, "/"),
		})

		if !info.IsDir() && name == i.cfg.DescFileName {
			i.readDescriptor(part, path, rel, log)
		}

		return nil
	})

	if walkErr != nil {
		part.Entries = nil
		part.Descriptors = nil
		part.Warning = walkErr.Error()
		log.Warn("Root is not readable", slog.String("root", root), slog.Any("error", walkErr))
	}

	return part
}

func (i *Indexer) readDescriptor(part *entity.IndexPartition, path, rel string, log *slog.Logger) {
	data, err := afero.ReadFile(i.fs, path)
	if err != nil {
		log.Warn("Cannot read descriptor", slog.String("path", path), slog.Any("error", err))

		return
	}

	desc, err := i.parser.Parse(data)
	if err != nil {
		log.Warn("Cannot parse descriptor", slog.String("path", path), slog.Any("error", err))

		return
	}

	desc.RelPath = dirOf(rel)
	part.Descriptors = append(part.Descriptors, *desc)
}

func dirOf(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return ""
	}

	return dir
}

func (i *Indexer) cachePath(fingerprint string) string {
	return filepath.Join(i.cfg.CacheDir, "index-"+fingerprint+".json")
}

// loadCache returns the cached index or nil when it is absent, stale, built
// for a different root set, or unreadable.
func (i *Indexer) loadCache(fingerprint string) *entity.DriveIndex {
	path := i.cachePath(fingerprint)

	data, err := afero.ReadFile(i.fs, path)
	if err != nil {
		return nil
	}

	var idx entity.DriveIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		i.log.Warn("Index cache is corrupt, rescanning", slog.String("path", path), slog.Any("error", err))

		return nil
	}

	if idx.Fingerprint != fingerprint {
		return nil
	}

	age := i.clock().Sub(idx.CreatedAt)
	if age > time.Duration(i.cfg.CacheMaxAgeHrs*float64(time.Hour)) {
		i.log.Info("Index cache is stale", slog.String("path", path), slog.Duration("age", age))

		return nil
	}

	i.log.Info("Using cached index",
		slog.String("path", path),
		slog.Duration("age", age),
		slog.Int("entries", idx.EntryCount()))

	return &idx
}

func (i *Indexer) saveCache(idx *entity.DriveIndex) {
	data, err := json.Marshal(idx)
	if err != nil {
		i.log.Warn("Cannot encode index cache", slog.Any("error", err))

		return
	}

	if err := i.fs.MkdirAll(i.cfg.CacheDir, 0o755); err != nil {
		i.log.Warn("Cannot create cache dir", slog.String("dir", i.cfg.CacheDir), slog.Any("error", err))

		return
	}

	path := i.cachePath(idx.Fingerprint)
	if err := afero.WriteFile(i.fs, path, data, 0o644); err != nil {
		i.log.Warn("Cannot write index cache", slog.String("path", path), slog.Any("error", err))

		return
	}

	i.log.Info("Index cached", slog.String("path", path), slog.Int("entries", idx.EntryCount()))
}

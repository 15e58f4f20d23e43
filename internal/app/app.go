// Package app wires the adapters, repositories and services into the three
// run modes of the tool.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/coursevault/coursevault/internal/adapter/descriptor"
	"github.com/coursevault/coursevault/internal/adapter/linkcheck"
	"github.com/coursevault/coursevault/internal/adapter/manifest"
	"github.com/coursevault/coursevault/internal/adapter/rclone"
	"github.com/coursevault/coursevault/internal/adapter/report"
	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/coursevault/coursevault/internal/repository/status"
	"github.com/coursevault/coursevault/internal/service/assign"
	"github.com/coursevault/coursevault/internal/service/reconcile"
	"github.com/coursevault/coursevault/internal/service/transfer"
	"github.com/coursevault/coursevault/internal/storage/index"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// ModeAudit reconciles and reports without moving any data.
	ModeAudit = "audit"
	// ModeFetch transfers missing assets, then reports the new state.
	ModeFetch = "fetch"
	// ModeReport renders a report from cached state only; no link checks.
	ModeReport = "report"
)

// Options are the command line knobs for one run.
type Options struct {
	Mode        string
	Courses     []string
	DryRun      bool
	Refresh     bool
	ForceRescan bool
}

type App struct {
	cfgPath string
	opts    Options
	cfg     *config.Config
	runID   string
	log     *slog.Logger
}

func New(cfgPath string, opts Options) *App {
	return &App{
		cfgPath: cfgPath,
		opts:    opts,
	}
}

func (a *App) Run(ctx context.Context) error {
	a.cfg = config.MustLoad(a.cfgPath)
	a.log = buildLogger(a.cfg.LogLevel)
	a.runID = uuid.NewString()

	a.log.Info("Run starting",
		slog.String("run_id", a.runID),
		slog.String("mode", a.opts.Mode))

	store, err := a.buildStore()
	if err != nil {
		return err
	}

	loader := manifest.New(&a.cfg.Manifest, a.log)
	courses, err := loader.Load(ctx, a.opts.Refresh)
	if err != nil {
		return err
	}

	indexer := index.New(descriptor.NewParser(), &a.cfg.Scan, a.log)
	idx, err := indexer.BuildOrLoad(ctx, a.cfg.ScanRoots(), a.opts.ForceRescan)
	if err != nil {
		return err
	}

	switch a.opts.Mode {
	case ModeAudit:
		return a.report(ctx, store, courses, idx, a.cfg.LinkCheck.Enabled)
	case ModeReport:
		return a.report(ctx, store, courses, idx, false)
	case ModeFetch:
		if err := a.fetch(ctx, store, courses); err != nil {
			return err
		}
		// The index predates the transfers; invalidate so the next audit
		// rescans, then report from outcomes which are already current.
		if err := indexer.Invalidate(a.cfg.ScanRoots()); err != nil {
			a.log.Warn("Cannot invalidate index cache", slog.Any("error", err))
		}

		return a.report(ctx, store, courses, idx, false)
	default:
		return fmt.Errorf("unknown mode %q", a.opts.Mode)
	}
}

func (a *App) buildStore() (status.Store, error) {
	switch a.cfg.State.Backend {
	case config.StateBackendFile:
		return status.NewFileStore(a.cfg.State.Dir, a.log)
	case config.StateBackendRedis:
		opt, err := redis.ParseURL(a.cfg.State.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("cannot parse redis url: %w", err)
		}

		return status.NewRedisStore(redis.NewClient(opt), a.log)
	default:
		return nil, fmt.Errorf("unknown state backend %q", a.cfg.State.Backend)
	}
}

func (a *App) report(ctx context.Context, store status.Store, courses []*entity.Course,
	idx *entity.DriveIndex, checkLinks bool) error {
	var checker reconcile.LinkChecker
	if checkLinks {
		checker = linkcheck.New(&a.cfg.LinkCheck, a.log)
	}

	svc := reconcile.New(store, checker, &a.cfg.Match, a.log)
	avails, err := svc.Reconcile(ctx, courses, idx)
	if err != nil {
		return err
	}

	writer, err := report.New(&a.cfg.Report, a.log)
	if err != nil {
		return err
	}

	mdPath, htmlPath, err := writer.Write(a.runID, avails)
	if err != nil {
		return err
	}

	fmt.Printf("Report: %s\n", mdPath)
	fmt.Printf("        %s\n", htmlPath)

	return nil
}

func (a *App) fetch(ctx context.Context, store status.Store, courses []*entity.Course) error {
	prober := assign.OSProber{}
	assigner := assign.New(store, a.cfg.Volumes, &a.cfg.Assign, prober, a.log)
	copier := rclone.New(&a.cfg.Transfer, a.log)

	orch := transfer.New(store, assigner, copier, prober, &a.cfg.Transfer, &a.cfg.Assign, a.log)
	results, err := orch.Run(ctx, courses, transfer.Options{
		DryRun: a.opts.DryRun,
		Filter: a.opts.Courses,
	})
	if err != nil {
		return err
	}

	for _, res := range results {
		line := fmt.Sprintf("%s: %s", res.Course, res.State)
		if res.Reason != "" {
			line += " (" + res.Reason + ")"
		}
		fmt.Println(line)
	}

	return nil
}

func buildLogger(level string) *slog.Logger {
	lo := &slog.HandlerOptions{}
	switch level {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}

	return slog.New(slog.NewTextHandler(os.Stderr, lo))
}

// Package rclone shells out to the rclone binary to copy a remote folder
// into a local destination. Copies are resumable on rclone's side, so a
// retried or re-run transfer only moves the files that are still missing.
package rclone

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/coursevault/coursevault/internal/config"
)

const backoffUnit = 15 * time.Second

// Runner executes an external command and returns its combined output.
// Tests inject their own to avoid spawning processes.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

type Client struct {
	cfg     *config.TransferConfig
	run     Runner
	backoff time.Duration
	log     *slog.Logger
}

func New(cfg *config.TransferConfig, log *slog.Logger) *Client {
	return NewWithRunner(cfg, execRun, log)
}

func NewWithRunner(cfg *config.TransferConfig, run Runner, log *slog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		run:     run,
		backoff: backoffUnit,
		log:     log.With(slog.String("item", "Rclone")),
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Copy pulls the remote folder identified by ref into dest, retrying with a
// linear backoff. ctx cancellation stops both the running command and the
// backoff wait.
func (c *Client) Copy(ctx context.Context, ref, dest string) error {
	args := c.args(ref, dest)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		out, err := c.run(ctx, "rclone", args...)
		if err == nil {
			c.log.Info("Copy finished", slog.String("ref", ref), slog.String("dest", dest))

			return nil
		}

		lastErr = fmt.Errorf("rclone copy: %w: %s", err, tail(out))
		c.log.Warn("Copy attempt failed",
			slog.String("ref", ref),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < c.cfg.Retries {
			if err := sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("cannot copy %s after %d attempts: %w", ref, c.cfg.Retries, lastErr)
}

func (c *Client) args(ref, dest string) []string {
	return []string{
		"copy",
		c.cfg.Remote + ":",
		dest,
		"--drive-root-folder-id=" + ref,
		fmt.Sprintf("--transfers=%d", c.cfg.Transfers),
		fmt.Sprintf("--checkers=%d", c.cfg.Checkers),
		"--retries=3",
		"--low-level-retries=10",
		"--stats=10s",
		"--stats-one-line",
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// tail keeps the last chunk of command output for error messages.
func tail(out []byte) string {
	const max = 400
	if len(out) > max {
		out = out[len(out)-max:]
	}

	return string(out)
}

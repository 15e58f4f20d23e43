package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coursevault/coursevault/internal/app"
)

type courseList []string

func (c *courseList) String() string {
	return strings.Join(*c, ",")
}

func (c *courseList) Set(v string) error {
	*c = append(*c, v)

	return nil
}

func main() {
	var courses courseList

	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	mode := flag.String("mode", app.ModeAudit, "Run mode: audit, fetch or report")
	dryRun := flag.Bool("dry-run", false, "Log planned transfers without copying")
	refresh := flag.Bool("refresh", false, "Ignore the cached manifest")
	forceRescan := flag.Bool("force-rescan", false, "Ignore the cached disk index")
	flag.Var(&courses, "course", "Only fetch courses whose name contains this text (repeatable)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("Received termination signal. Finishing current asset...")
		cancel()
	}()

	a := app.New(*cfgFileName, app.Options{
		Mode:        *mode,
		Courses:     courses,
		DryRun:      *dryRun,
		Refresh:     *refresh,
		ForceRescan: *forceRescan,
	})

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "coursevault: %s\n", err)
		os.Exit(1)
	}
}

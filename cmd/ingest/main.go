// Command ingest downloads the MediaDive catalogue into the local database.
// Runs are resumable: completed units are recorded in the ingest ledger and
// skipped on the next invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vthunder/culturedb/internal/app"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/mediadive"
	"github.com/vthunder/culturedb/internal/pipeline"
	"github.com/vthunder/culturedb/internal/profiling"
)

func main() {
	step := flag.String("step", "all", `stages to run, e.g. "1-3,5"`)
	reset := flag.String("reset", "", "clear ledger entries for a stage selector or task prefix, then exit")
	pageSize := flag.Int("page-size", 0, "items per list request")
	profileFile := flag.String("profile-file", "", "append stage timings (JSON lines) to this file")
	profileLevel := flag.String("profile-level", "stages", "profiling detail: off, stages or units")
	common := app.RegisterFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	cfg, err := common.Load()
	if err != nil {
		log.Fatal(err)
	}
	app.Override(&cfg.ProfileFile, *profileFile)

	stages, err := pipeline.ParseStages(*step)
	if err != nil {
		log.Fatalf("Invalid -step: %v", err)
	}
	level, err := profiling.ParseLevel(*profileLevel)
	if err != nil {
		log.Fatalf("Invalid -profile-level: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, app.Options{NoCache: common.NoCache, ProfileLevel: level})
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer rt.Close()

	client, err := rt.MediaDive()
	if err != nil {
		log.Fatalf("Failed to create MediaDive client: %v", err)
	}
	in := mediadive.New(rt.DB, client, mediadive.Options{PageSize: *pageSize, Metrics: rt.Metrics})
	p := pipeline.New(in, pipeline.Options{Metrics: rt.Metrics, Profiler: rt.Profiler})

	if *reset != "" {
		if _, err := p.Reset(ctx, *reset); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		return
	}

	logging.Info("main", "Ingesting from %s", client.BaseURL())
	report, err := p.Run(ctx, stages)
	if report != nil {
		report.Log()
	}
	if err != nil {
		rt.Close()
		log.Fatalf("Run failed: %v", err)
	}
	if report.Interrupted {
		logging.Info("main", "Interrupted; completed units are saved")
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `ingest - download the MediaDive catalogue

Usage: ingest [flags]

Stages:
`)
	for _, s := range pipeline.Stages {
		fmt.Fprintf(os.Stderr, "  %d  %s\n", s.Num, s.Name)
	}
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
}

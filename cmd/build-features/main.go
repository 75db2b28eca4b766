// Command build-features exports the catalogue as Parquet datasets: the
// media composition matrix, strain summaries and split training samples
// for growth and genome-media prediction.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vthunder/culturedb/internal/app"
	"github.com/vthunder/culturedb/internal/features"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/profiling"
)

func main() {
	out := flag.String("out", "", "output directory (default from config)")
	method := flag.String("method", "", "genome embedding method; \"none\" skips the genome-media dataset")
	organismType := flag.String("organism-type", "", "restrict genome samples to one organism type")
	seed := flag.Int64("seed", 0, "split seed (default from config)")
	testSize := flag.Float64("test", 0, "test fraction (default from config)")
	valSize := flag.Float64("val", 0, "validation fraction (default from config)")
	printSummary := flag.Bool("json", false, "print the summary as JSON on stdout")
	common := app.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := common.Load()
	if err != nil {
		log.Fatal(err)
	}
	fc := cfg.Features
	app.Override(&fc.OutDir, *out)
	app.Override(&fc.Method, *method)
	if fc.Method == "none" {
		fc.Method = ""
	}
	if *seed != 0 {
		fc.Seed = *seed
	}
	if *testSize > 0 {
		fc.TestSize = *testSize
	}
	if *valSize > 0 {
		fc.ValSize = *valSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, app.Options{ProfileLevel: profiling.LevelOff})
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer rt.Close()

	summary, err := features.NewBuilder(rt.DB).Export(ctx, fc.OutDir, features.Options{
		Method:       fc.Method,
		OrganismType: *organismType,
		Seed:         fc.Seed,
		TestSize:     fc.TestSize,
		ValSize:      fc.ValSize,
	})
	if err != nil {
		rt.Close()
		log.Fatalf("Export failed: %v", err)
	}

	logging.Info("main", "Wrote %d files to %s", len(summary.Files), summary.Dir)
	logging.Info("main", "  media %d x ingredients %d, strains %d",
		summary.Media, summary.Ingredients, summary.Strains)
	logging.Info("main", "  growth samples %d, genome samples %d",
		summary.GrowthSamples, summary.GenomeSamples)
	for name, split := range summary.Splits {
		logging.Info("main", "  %s split: train %d, val %d, test %d",
			name, split[features.SplitTrain], split[features.SplitVal], split[features.SplitTest])
	}
	if *printSummary {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(summary)
	}
}

// Command ingest-organisms adds organisms beyond the MediaDive catalogue:
// BacDive strains, NCBI genomes for fungi, protists and archaea, curated
// organism-media links and literature-based growth conditions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/vthunder/culturedb/internal/app"
	"github.com/vthunder/culturedb/internal/bacdive"
	"github.com/vthunder/culturedb/internal/enrich"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/ncbi"
	"github.com/vthunder/culturedb/internal/profiling"
	"github.com/vthunder/culturedb/internal/store"
)

func main() {
	bacteria := flag.Bool("bacteria", false, "ingest bacterial strains from BacDive")
	fungi := flag.Bool("fungi", false, "ingest fungal genomes from NCBI")
	protists := flag.Bool("protists", false, "ingest protist genomes from NCBI")
	archaea := flag.Bool("archaea", false, "ingest archaeal genomes from NCBI")
	all := flag.Bool("all", false, "ingest from every source")
	bacdiveQuery := flag.String("bacdive-query", "bacteria", "BacDive search query")
	bacdiveLimit := flag.Int("bacdive-limit", 100, "max BacDive strains to ingest")
	fungalGenus := flag.String("fungal-genus", "", "restrict fungi to one genus, e.g. Saccharomyces")
	ncbiLimit := flag.Int("ncbi-limit", 100, "max NCBI genomes per organism type")
	curated := flag.Bool("curated", false, "apply curated organism-media links")
	enrichOrganism := flag.String("enrich", "", "infer growth conditions for an organism and search PubMed")
	enrichType := flag.String("enrich-type", store.OrganismBacteria, "organism type for -enrich")
	enrichLimit := flag.Int("enrich-limit", 5, "max PubMed articles for -enrich")
	common := app.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := common.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, app.Options{NoCache: common.NoCache, ProfileLevel: profiling.LevelStages})
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer rt.Close()

	start := time.Now()
	runID := fmt.Sprintf("organisms-%d", start.Unix())
	failed := false
	stage := func(name string, fn func() error) {
		if ctx.Err() != nil {
			return
		}
		t0 := time.Now()
		done := rt.Profiler.Stage(runID, name)
		logging.Info("main", "== %s ==", name)
		err := fn()
		done(map[string]any{"ok": err == nil})
		rt.Metrics.ObserveStage(name, time.Since(t0))
		if err != nil {
			logging.Warn("main", "%s failed: %v", name, err)
			failed = true
		}
	}

	if *bacteria || *all {
		stage("bacdive", func() error {
			client, err := rt.BacDive()
			if err != nil {
				return err
			}
			_, err = bacdive.New(rt.DB, client, rt.Metrics).SearchAndIngest(ctx, *bacdiveQuery, store.OrganismBacteria, *bacdiveLimit)
			return err
		})
	}

	var genomes *ncbi.Ingester
	ncbiIngester := func() (*ncbi.Ingester, error) {
		if genomes != nil {
			return genomes, nil
		}
		client, err := rt.NCBI()
		if err != nil {
			return nil, err
		}
		genomes = ncbi.NewIngester(rt.DB, ncbi.NewClient(client), rt.Metrics)
		return genomes, nil
	}
	for _, g := range []struct {
		enabled bool
		otype   string
		genus   string
	}{
		{*fungi || *all, store.OrganismFungi, *fungalGenus},
		{*protists || *all, store.OrganismProtist, ""},
		{*archaea || *all, store.OrganismArchaea, ""},
	} {
		if !g.enabled {
			continue
		}
		stage("ncbi_"+g.otype, func() error {
			in, err := ncbiIngester()
			if err != nil {
				return err
			}
			_, err = in.IngestGenomes(ctx, g.otype, g.genus, *ncbiLimit)
			return err
		})
	}

	if *curated {
		stage("curated", func() error {
			_, err := enrich.ApplyCurated(ctx, rt.DB, enrich.DefaultCuratedMap().With(cfg.CuratedGrowth))
			return err
		})
	}

	if *enrichOrganism != "" {
		stage("enrich", func() error {
			in, err := ncbiIngester()
			if err != nil {
				return err
			}
			report, err := enrich.NewEnricher(rt.DB, in.Client()).Enrich(ctx, *enrichOrganism, *enrichType, *enrichLimit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
	}

	printStatistics(ctx, rt.DB)
	logging.Info("main", "Finished in %s", time.Since(start).Round(time.Millisecond))
	if ctx.Err() != nil {
		logging.Info("main", "Interrupted; completed units are saved")
	}
	if failed {
		rt.Close()
		os.Exit(1)
	}
}

func printStatistics(ctx context.Context, db *store.DB) {
	counts, err := db.TableCounts(ctx)
	if err != nil {
		logging.Warn("main", "table counts: %v", err)
		return
	}
	for _, table := range []string{"strains", "genomes", "genome_growth"} {
		logging.Info("main", "  %-14s %d", table, store.CountOf(counts, table))
	}
	bySource, err := db.GenomeGrowthBySource(ctx)
	if err != nil {
		logging.Warn("main", "genome growth: %v", err)
		return
	}
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		logging.Info("main", "  genome_growth[%s] %d", s, bySource[s])
	}
}

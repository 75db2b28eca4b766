// Command link-genomes finds NCBI genomes for catalogue species, copies the
// strains' growth observations onto them and computes genome embeddings.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vthunder/culturedb/internal/app"
	"github.com/vthunder/culturedb/internal/genome"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/ncbi"
	"github.com/vthunder/culturedb/internal/profiling"
)

func main() {
	maxPerSpecies := flag.Int("max-per-species", 1, "genomes to link per species")
	limitSpecies := flag.Int("limit-species", 0, "process at most this many species (0 = all)")
	skipLink := flag.Bool("skip-link", false, "do not search NCBI")
	propagate := flag.Bool("propagate", true, "copy strain growth onto linked genomes")
	embed := flag.String("embed", "", "compute embeddings with this method, e.g. kmer_4 or stats")
	common := app.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := common.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, app.Options{NoCache: common.NoCache, ProfileLevel: profiling.LevelOff})
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer rt.Close()

	if !*skipLink {
		api, err := rt.NCBI()
		if err != nil {
			log.Fatalf("Failed to create NCBI client: %v", err)
		}
		linker := genome.NewLinker(rt.DB, ncbi.NewIngester(rt.DB, ncbi.NewClient(api), rt.Metrics))
		counts, err := linker.LinkSpeciesToNCBI(ctx, *maxPerSpecies, *limitSpecies)
		if err != nil {
			rt.Close()
			log.Fatalf("Linking failed: %v", err)
		}
		logging.Info("main", "Species %d: linked %d, no genome %d, failed %d",
			counts.Species, counts.Linked, counts.NoGenome, counts.Failed)
	}

	if *propagate && ctx.Err() == nil {
		n, err := genome.PropagateGrowth(ctx, rt.DB)
		if err != nil {
			rt.Close()
			log.Fatalf("Propagation failed: %v", err)
		}
		logging.Info("main", "Propagated %d growth observations to genomes", n)
	}

	if *embed != "" && ctx.Err() == nil {
		counts, err := genome.NewEmbedder(rt.DB, cfg.GenomesDir, rt.Metrics).ComputeAll(ctx, *embed)
		if err != nil {
			rt.Close()
			log.Fatalf("Embedding failed: %v", err)
		}
		logging.Info("main", "Embeddings (%s): %d computed, %d failed of %d pending",
			*embed, counts.Computed, counts.Failed, counts.Pending)
	}
}

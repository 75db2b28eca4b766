package tools

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/vthunder/culturedb/internal/genome"
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/mcp"
	"github.com/vthunder/culturedb/internal/store"
)

// RegisterAll registers all MCP tools with the given server and dependencies.
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	if deps.Ledger == nil {
		deps.Ledger = ledger.New(deps.DB)
	}
	registerStatusTools(server, deps)
	registerMediaTools(server, deps)
	registerStrainTools(server, deps)
	registerGenomeTools(server, deps)
}

func registerStatusTools(server *mcp.Server, deps *Dependencies) {
	server.RegisterTool(mcplib.NewTool("catalogue_stats",
		mcplib.WithDescription("Row counts of every catalogue table, the schema version and failed ingestion units per stage."),
	), func(ctx context.Context, args map[string]any) (string, error) {
		counts, err := deps.DB.TableCounts(ctx)
		if err != nil {
			return "", err
		}
		version, err := deps.DB.SchemaVersion(ctx)
		if err != nil {
			return "", err
		}
		errs, err := deps.Ledger.ErrorCountsByStage(ctx)
		if err != nil {
			return "", err
		}
		return mcp.JSON(map[string]any{"schema_version": version, "tables": counts, "errors": errs})
	})

	server.RegisterTool(mcplib.NewTool("recent_runs",
		mcplib.WithDescription("Latest ingestion runs with unit tallies, newest first."),
		mcplib.WithNumber("limit", mcplib.Description("Runs to return (default 10)")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		n, err := mcp.Int(args, "limit", 10)
		if err != nil {
			return "", err
		}
		runs, err := deps.DB.RecentRuns(ctx, deps.limit(n))
		if err != nil {
			return "", err
		}
		return mcp.JSON(runs)
	})

	server.RegisterTool(mcplib.NewTool("ingest_errors",
		mcplib.WithDescription("Failed ingestion units with their last error message. These are retried on the next run."),
		mcplib.WithString("stage", mcplib.Description("Only this stage, e.g. medium_detail")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		entries, err := deps.Ledger.Errors(ctx, mcp.String(args, "stage"))
		if err != nil {
			return "", err
		}
		if len(entries) > deps.limit(0) {
			entries = entries[:deps.limit(0)]
		}
		return mcp.JSON(entries)
	})
}

func registerMediaTools(server *mcp.Server, deps *Dependencies) {
	server.RegisterTool(mcplib.NewTool("list_media",
		mcplib.WithDescription("List growth media, optionally filtered by a case-insensitive name or id substring."),
		mcplib.WithString("query", mcplib.Description("Substring of the medium name or id")),
		mcplib.WithNumber("limit", mcplib.Description("Maximum media to return")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		n, err := mcp.Int(args, "limit", 0)
		if err != nil {
			return "", err
		}
		media, err := deps.DB.AllMedia(ctx)
		if err != nil {
			return "", err
		}
		q := strings.ToLower(mcp.String(args, "query"))
		out := make([]store.Medium, 0)
		for _, m := range media {
			if q != "" && !strings.Contains(strings.ToLower(m.Name), q) && !strings.Contains(strings.ToLower(m.ID), q) {
				continue
			}
			out = append(out, m)
			if len(out) == deps.limit(n) {
				break
			}
		}
		return mcp.JSON(out)
	})

	server.RegisterTool(mcplib.NewTool("get_medium",
		mcplib.WithDescription("One medium with its flattened composition and the solutions it is prepared from."),
		mcplib.WithString("media_id", mcplib.Required(), mcplib.Description("Medium id, e.g. 1 or J22")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		id, err := mcp.RequiredString(args, "media_id")
		if err != nil {
			return "", err
		}
		m, err := deps.DB.Medium(ctx, id)
		if err != nil {
			return "", err
		}
		if m == nil {
			return "", fmt.Errorf("medium %s not found", id)
		}
		comp, err := deps.DB.MediaComposition(ctx, id)
		if err != nil {
			return "", err
		}
		solutions, err := deps.DB.SolutionsForMedium(ctx, id)
		if err != nil {
			return "", err
		}
		return mcp.JSON(map[string]any{"medium": m, "composition": comp, "solutions": solutions})
	})

	server.RegisterTool(mcplib.NewTool("solution_recipe",
		mcplib.WithDescription("Ordered recipe lines and preparation steps of a solution."),
		mcplib.WithNumber("solution_id", mcplib.Required(), mcplib.Description("Solution id")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		id, err := mcp.Int(args, "solution_id", 0)
		if err != nil {
			return "", err
		}
		if id <= 0 {
			return "", fmt.Errorf("solution_id is required")
		}
		recipe, err := deps.DB.SolutionRecipe(ctx, id)
		if err != nil {
			return "", err
		}
		steps, err := deps.DB.SolutionSteps(ctx, id)
		if err != nil {
			return "", err
		}
		return mcp.JSON(map[string]any{"solution_id": id, "recipe": recipe, "steps": steps})
	})
}

func registerStrainTools(server *mcp.Server, deps *Dependencies) {
	server.RegisterTool(mcplib.NewTool("list_strains",
		mcplib.WithDescription("List strains, optionally only those of one species."),
		mcplib.WithString("species", mcplib.Description("Exact species name, e.g. Escherichia coli")),
		mcplib.WithNumber("limit", mcplib.Description("Maximum strains to return")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		n, err := mcp.Int(args, "limit", 0)
		if err != nil {
			return "", err
		}
		var strains []store.Strain
		if species := mcp.String(args, "species"); species != "" {
			strains, err = deps.DB.StrainsBySpecies(ctx, species)
		} else {
			strains, err = deps.DB.AllStrains(ctx)
		}
		if err != nil {
			return "", err
		}
		if len(strains) > deps.limit(n) {
			strains = strains[:deps.limit(n)]
		}
		return mcp.JSON(strains)
	})

	server.RegisterTool(mcplib.NewTool("strain_growth",
		mcplib.WithDescription("A strain and every medium it was tested on, with growth outcome and quality."),
		mcplib.WithNumber("strain_id", mcplib.Required(), mcplib.Description("Strain id")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		id, err := mcp.Int(args, "strain_id", 0)
		if err != nil {
			return "", err
		}
		s, err := store.GetStrain(ctx, deps.DB, id)
		if err != nil {
			return "", err
		}
		if s == nil {
			return "", fmt.Errorf("strain %d not found", id)
		}
		growth, err := deps.DB.GrowthForStrain(ctx, id)
		if err != nil {
			return "", err
		}
		return mcp.JSON(map[string]any{"strain": s, "growth": growth})
	})
}

func registerGenomeTools(server *mcp.Server, deps *Dependencies) {
	server.RegisterTool(mcplib.NewTool("list_genomes",
		mcplib.WithDescription("List genomes by organism type or organism name substring."),
		mcplib.WithString("organism_type", mcplib.Description("bacteria, archaea, fungi, protist or virus")),
		mcplib.WithString("organism", mcplib.Description("Substring of the organism name")),
		mcplib.WithNumber("limit", mcplib.Description("Maximum genomes to return")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		n, err := mcp.Int(args, "limit", 0)
		if err != nil {
			return "", err
		}
		otype := mcp.String(args, "organism_type")
		if otype != "" && !store.ValidOrganismType(otype) {
			return "", fmt.Errorf("invalid organism_type %q", otype)
		}
		var genomes []store.Genome
		if org := mcp.String(args, "organism"); org != "" {
			genomes, err = deps.DB.GenomesMatching(ctx, org)
		} else {
			genomes, err = deps.DB.Genomes(ctx, otype)
		}
		if err != nil {
			return "", err
		}
		out := make([]store.Genome, 0, len(genomes))
		for _, g := range genomes {
			if otype != "" && g.OrganismType != otype {
				continue
			}
			out = append(out, g)
			if len(out) == deps.limit(n) {
				break
			}
		}
		return mcp.JSON(out)
	})

	server.RegisterTool(mcplib.NewTool("genome_growth",
		mcplib.WithDescription("Genome-level growth labels with confidence and provenance."),
		mcplib.WithString("genome_id", mcplib.Description("Only this genome")),
		mcplib.WithString("source", mcplib.Description("Only this provenance, e.g. literature, inferred, curated or propagated")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		rows, err := deps.DB.GenomeGrowthRows(ctx, mcp.String(args, "source"))
		if err != nil {
			return "", err
		}
		id := mcp.String(args, "genome_id")
		out := make([]store.GenomeGrowth, 0)
		for _, r := range rows {
			if id != "" && r.GenomeID != id {
				continue
			}
			out = append(out, r)
			if len(out) == deps.limit(0) {
				break
			}
		}
		return mcp.JSON(out)
	})

	server.RegisterTool(mcplib.NewTool("similar_genomes",
		mcplib.WithDescription("Genomes whose embeddings are most similar (cosine) to a given genome."),
		mcplib.WithString("genome_id", mcplib.Required(), mcplib.Description("Genome accession")),
		mcplib.WithString("method", mcplib.Description("Embedding method, e.g. kmer_4 or stats")),
		mcplib.WithNumber("k", mcplib.Description("Neighbours to return (default 10)")),
	), func(ctx context.Context, args map[string]any) (string, error) {
		id, err := mcp.RequiredString(args, "genome_id")
		if err != nil {
			return "", err
		}
		k, err := mcp.Int(args, "k", 10)
		if err != nil {
			return "", err
		}
		method := mcp.String(args, "method")
		if method == "" {
			method = deps.EmbeddingMethod
		}
		if _, err := genome.ParseMethod(method); err != nil {
			return "", err
		}
		matches, err := genome.Similar(ctx, deps.DB, id, method, deps.limit(k))
		if err != nil {
			return "", err
		}
		return mcp.JSON(matches)
	})
}

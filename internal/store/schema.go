package store

import (
	"context"
	"fmt"
	"strings"
)

// schemaVersion is bumped whenever an incremental migration is added below.
const schemaVersion = 2

// baseSchema uses {{...}} tokens for the few type names that differ between
// SQLite and Postgres. Everything else is common SQL.
const baseSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS media (
	media_id TEXT PRIMARY KEY,
	media_name TEXT NOT NULL,
	complex_medium INTEGER NOT NULL DEFAULT 0 CHECK (complex_medium IN (0, 1)),
	source TEXT,
	link TEXT,
	min_ph {{real}},
	max_ph {{real}},
	reference TEXT,
	description TEXT,
	fetched_detail INTEGER NOT NULL DEFAULT 0 CHECK (fetched_detail IN (0, 1))
);

CREATE TABLE IF NOT EXISTS ingredients (
	ingredient_id {{bigint}} PRIMARY KEY,
	ingredient_name TEXT NOT NULL,
	chebi TEXT,
	cas_rn TEXT,
	pubchem TEXT,
	molar_mass {{real}},
	formula TEXT,
	density {{real}}
);

CREATE TABLE IF NOT EXISTS solutions (
	solution_id {{bigint}} PRIMARY KEY,
	solution_name TEXT NOT NULL DEFAULT '',
	volume_ml {{real}}
);

CREATE TABLE IF NOT EXISTS media_solutions (
	media_id TEXT NOT NULL REFERENCES media(media_id),
	solution_id {{bigint}} NOT NULL REFERENCES solutions(solution_id),
	PRIMARY KEY (media_id, solution_id)
);

CREATE TABLE IF NOT EXISTS solution_recipe (
	solution_id {{bigint}} NOT NULL REFERENCES solutions(solution_id),
	recipe_order INTEGER NOT NULL,
	ingredient_id {{bigint}},
	ingredient_name TEXT NOT NULL DEFAULT '',
	amount {{real}},
	unit TEXT,
	g_per_l {{real}} CHECK (g_per_l IS NULL OR g_per_l >= 0),
	mmol_per_l {{real}} CHECK (mmol_per_l IS NULL OR mmol_per_l >= 0),
	is_optional INTEGER NOT NULL DEFAULT 0 CHECK (is_optional IN (0, 1)),
	condition_note TEXT,
	sub_solution_id {{bigint}},
	PRIMARY KEY (solution_id, recipe_order)
);

CREATE TABLE IF NOT EXISTS solution_steps (
	solution_id {{bigint}} NOT NULL REFERENCES solutions(solution_id),
	step_order INTEGER NOT NULL,
	step_text TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (solution_id, step_order)
);

CREATE TABLE IF NOT EXISTS media_composition (
	media_id TEXT NOT NULL REFERENCES media(media_id),
	ingredient_id {{bigint}} NOT NULL,
	ingredient_name TEXT NOT NULL DEFAULT '',
	g_per_l {{real}} CHECK (g_per_l IS NULL OR g_per_l >= 0),
	mmol_per_l {{real}} CHECK (mmol_per_l IS NULL OR mmol_per_l >= 0),
	is_optional INTEGER NOT NULL DEFAULT 0 CHECK (is_optional IN (0, 1)),
	PRIMARY KEY (media_id, ingredient_id)
);

CREATE TABLE IF NOT EXISTS strains (
	strain_id {{bigint}} PRIMARY KEY,
	species TEXT,
	ccno TEXT,
	bacdive_id {{bigint}},
	domain TEXT,
	id_source TEXT
);

CREATE TABLE IF NOT EXISTS strain_growth (
	strain_id {{bigint}} NOT NULL REFERENCES strains(strain_id),
	media_id TEXT NOT NULL REFERENCES media(media_id),
	growth INTEGER NOT NULL CHECK (growth IN (0, 1)),
	growth_rate TEXT,
	growth_quality TEXT,
	modification TEXT,
	PRIMARY KEY (strain_id, media_id)
);

CREATE TABLE IF NOT EXISTS genomes (
	genome_id TEXT PRIMARY KEY,
	strain_id {{bigint}} REFERENCES strains(strain_id),
	organism_name TEXT NOT NULL,
	organism_type TEXT NOT NULL CHECK (organism_type IN ('bacteria', 'archaea', 'fungi', 'protist', 'virus')),
	taxid {{bigint}},
	gc_content {{real}},
	sequence_length {{bigint}},
	fasta_path TEXT
);

CREATE TABLE IF NOT EXISTS genome_growth (
	genome_id TEXT NOT NULL REFERENCES genomes(genome_id),
	media_id TEXT NOT NULL REFERENCES media(media_id),
	growth INTEGER NOT NULL CHECK (growth IN (0, 1)),
	growth_rate TEXT,
	confidence {{real}} NOT NULL DEFAULT 1 CHECK (confidence >= 0 AND confidence <= 1),
	source TEXT NOT NULL CHECK (source IN ('literature', 'inferred', 'curated', 'propagated')),
	PRIMARY KEY (genome_id, media_id, source)
);

CREATE TABLE IF NOT EXISTS genome_embeddings (
	genome_id TEXT NOT NULL REFERENCES genomes(genome_id),
	method TEXT NOT NULL,
	dim INTEGER NOT NULL,
	vector {{blob}} NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (genome_id, method)
);

CREATE TABLE IF NOT EXISTS ingest_log (
	task TEXT PRIMARY KEY,
	status TEXT NOT NULL CHECK (status IN ('done', 'error')),
	updated_at TEXT NOT NULL,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_strain_growth_media ON strain_growth(media_id);
CREATE INDEX IF NOT EXISTS idx_genome_growth_media ON genome_growth(media_id);
CREATE INDEX IF NOT EXISTS idx_genomes_type ON genomes(organism_type);
CREATE INDEX IF NOT EXISTS idx_genomes_strain ON genomes(strain_id);
`

// runsSchema adds the per-invocation run history (v2).
const runsSchema = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	stages TEXT NOT NULL DEFAULT '',
	units_done INTEGER NOT NULL DEFAULT 0,
	units_skipped INTEGER NOT NULL DEFAULT 0,
	units_failed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_media_fetched ON media(fetched_detail);
`

var typeTokens = map[Dialect]*strings.Replacer{
	SQLite: strings.NewReplacer(
		"{{real}}", "REAL",
		"{{bigint}}", "INTEGER",
		"{{blob}}", "BLOB",
	),
	Postgres: strings.NewReplacer(
		"{{real}}", "DOUBLE PRECISION",
		"{{bigint}}", "BIGINT",
		"{{blob}}", "BYTEA",
	),
}

// migrate creates all tables if missing and records the schema version.
func (d *DB) migrate(ctx context.Context) error {
	if err := d.execScript(ctx, baseSchema); err != nil {
		return err
	}

	var version int
	if err := d.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// v2: ingest run history
	if version < 2 {
		if err := d.execScript(ctx, runsSchema); err != nil {
			return err
		}
	}

	if version < schemaVersion {
		_, err := d.Exec(ctx,
			"INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING",
			schemaVersion, Now())
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// execScript runs a multi-statement script one statement at a time, since
// not every driver accepts several statements in one Exec.
func (d *DB) execScript(ctx context.Context, script string) error {
	script = typeTokens[d.dialect].Replace(script)
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed (%s): %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// SchemaVersion returns the highest applied schema version.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := d.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}

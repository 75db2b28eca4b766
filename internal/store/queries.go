package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SummaryTables are reported, in this order, at the end of every run.
var SummaryTables = []string{
	"media", "ingredients", "solutions", "media_solutions",
	"solution_recipe", "solution_steps", "media_composition",
	"strains", "strain_growth",
	"genomes", "genome_growth", "genome_embeddings",
}

// TableCounts returns row counts for SummaryTables.
func (d *DB) TableCounts(ctx context.Context) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(SummaryTables))
	for _, table := range SummaryTables {
		var n int
		if err := d.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}

// CountOf returns the row count for one table out of a TableCounts result.
func CountOf(counts []TableCount, table string) int {
	for _, c := range counts {
		if c.Table == table {
			return c.Rows
		}
	}
	return 0
}

// --- Media ---

const mediumColumns = `media_id, media_name, complex_medium, source, link, min_ph, max_ph, reference, description, fetched_detail`

func scanMedium(rows *sql.Rows) (Medium, error) {
	var m Medium
	err := rows.Scan(&m.ID, &m.Name, &m.Complex, &m.Source, &m.Link, &m.MinPH, &m.MaxPH,
		&m.Reference, &m.Description, &m.FetchedDetail)
	return m, err
}

// AllMedia returns every medium ordered by id.
func (d *DB) AllMedia(ctx context.Context) ([]Medium, error) {
	rows, err := d.Query(ctx, `SELECT `+mediumColumns+` FROM media ORDER BY media_id`)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var out []Medium
	for rows.Next() {
		m, err := scanMedium(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Medium returns one medium, or nil if it does not exist.
func (d *DB) Medium(ctx context.Context, id string) (*Medium, error) {
	rows, err := d.Query(ctx, `SELECT `+mediumColumns+` FROM media WHERE media_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMedium(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MediaIDs returns all media ids.
func (d *DB) MediaIDs(ctx context.Context) ([]string, error) {
	return d.stringColumn(ctx, `SELECT media_id FROM media ORDER BY media_id`)
}

// MediaIDsWithoutDetail returns media whose detail has not been fetched.
func (d *DB) MediaIDsWithoutDetail(ctx context.Context) ([]string, error) {
	return d.stringColumn(ctx, `SELECT media_id FROM media WHERE fetched_detail = 0 ORDER BY media_id`)
}

// MediaExists reports whether a medium id is known.
func MediaExists(ctx context.Context, q Querier, id string) (bool, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM media WHERE media_id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- Ingredients ---

// AllIngredients returns every ingredient ordered by id.
func (d *DB) AllIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := d.Query(ctx, `
		SELECT ingredient_id, ingredient_name, chebi, cas_rn, pubchem, molar_mass, formula, density
		FROM ingredients ORDER BY ingredient_id`)
	if err != nil {
		return nil, fmt.Errorf("query ingredients: %w", err)
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		var in Ingredient
		if err := rows.Scan(&in.ID, &in.Name, &in.ChEBI, &in.CASRN, &in.PubChem,
			&in.MolarMass, &in.Formula, &in.Density); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// --- Compositions ---

// MediaComposition returns the flattened composition of one medium.
func (d *DB) MediaComposition(ctx context.Context, mediaID string) ([]Composition, error) {
	return d.compositions(ctx, `
		SELECT media_id, ingredient_id, ingredient_name, g_per_l, mmol_per_l, is_optional
		FROM media_composition WHERE media_id = ? ORDER BY ingredient_id`, mediaID)
}

// CompositionTriples returns every composition row; only media id,
// ingredient id and g/L are meaningful for matrix building.
func (d *DB) CompositionTriples(ctx context.Context) ([]Composition, error) {
	return d.compositions(ctx, `
		SELECT media_id, ingredient_id, ingredient_name, g_per_l, mmol_per_l, is_optional
		FROM media_composition ORDER BY media_id, ingredient_id`)
}

func (d *DB) compositions(ctx context.Context, query string, args ...any) ([]Composition, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query compositions: %w", err)
	}
	defer rows.Close()

	var out []Composition
	for rows.Next() {
		var c Composition
		if err := rows.Scan(&c.MediaID, &c.IngredientID, &c.IngredientName,
			&c.GPerL, &c.MmolPerL, &c.Optional); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Solutions ---

// SolutionsForMedium returns the solutions linked to a medium.
func (d *DB) SolutionsForMedium(ctx context.Context, mediaID string) ([]Solution, error) {
	rows, err := d.Query(ctx, `
		SELECT s.solution_id, s.solution_name, s.volume_ml
		FROM solutions s
		JOIN media_solutions ms ON s.solution_id = ms.solution_id
		WHERE ms.media_id = ?
		ORDER BY s.solution_id`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("query solutions for %s: %w", mediaID, err)
	}
	defer rows.Close()

	var out []Solution
	for rows.Next() {
		var s Solution
		if err := rows.Scan(&s.ID, &s.Name, &s.VolumeML); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SolutionRecipe returns a solution's recipe lines in recipe order.
func (d *DB) SolutionRecipe(ctx context.Context, solutionID int64) ([]RecipeLine, error) {
	rows, err := d.Query(ctx, `
		SELECT solution_id, recipe_order, ingredient_id, ingredient_name, amount, unit,
			g_per_l, mmol_per_l, is_optional, condition_note, sub_solution_id
		FROM solution_recipe WHERE solution_id = ? ORDER BY recipe_order`, solutionID)
	if err != nil {
		return nil, fmt.Errorf("query recipe %d: %w", solutionID, err)
	}
	defer rows.Close()

	var out []RecipeLine
	for rows.Next() {
		var l RecipeLine
		if err := rows.Scan(&l.SolutionID, &l.Order, &l.IngredientID, &l.IngredientName,
			&l.Amount, &l.Unit, &l.GPerL, &l.MmolPerL, &l.Optional, &l.Condition,
			&l.SubSolutionID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SolutionSteps returns a solution's preparation steps in order.
func (d *DB) SolutionSteps(ctx context.Context, solutionID int64) ([]Step, error) {
	rows, err := d.Query(ctx, `
		SELECT solution_id, step_order, step_text
		FROM solution_steps WHERE solution_id = ? ORDER BY step_order`, solutionID)
	if err != nil {
		return nil, fmt.Errorf("query steps %d: %w", solutionID, err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.SolutionID, &s.Order, &s.Text); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SolutionIDs returns all solution ids.
func (d *DB) SolutionIDs(ctx context.Context) ([]int64, error) {
	return d.int64Column(ctx, `SELECT solution_id FROM solutions ORDER BY solution_id`)
}

// --- Strains ---

// AllStrains returns every strain ordered by id.
func (d *DB) AllStrains(ctx context.Context) ([]Strain, error) {
	return d.strains(ctx, `SELECT strain_id, species, ccno, bacdive_id, domain, id_source FROM strains ORDER BY strain_id`)
}

// GetStrain returns one strain, or nil if it does not exist.
func GetStrain(ctx context.Context, q Querier, id int64) (*Strain, error) {
	var s Strain
	err := q.QueryRow(ctx, `SELECT strain_id, species, ccno, bacdive_id, domain, id_source FROM strains WHERE strain_id = ?`, id).
		Scan(&s.ID, &s.Species, &s.CCNo, &s.BacDiveID, &s.Domain, &s.IDSource)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StrainIDs returns all strain ids.
func (d *DB) StrainIDs(ctx context.Context) ([]int64, error) {
	return d.int64Column(ctx, `SELECT strain_id FROM strains ORDER BY strain_id`)
}

// StrainIDsFrom returns the ids of strains recorded from one catalogue.
// Rows with no recorded source are included.
func (d *DB) StrainIDsFrom(ctx context.Context, source string) ([]int64, error) {
	return d.int64Column(ctx, `SELECT strain_id FROM strains WHERE id_source IS NULL OR id_source = ? ORDER BY strain_id`, source)
}

// StrainsBySpecies returns strains whose species matches exactly.
func (d *DB) StrainsBySpecies(ctx context.Context, species string) ([]Strain, error) {
	return d.strains(ctx, `SELECT strain_id, species, ccno, bacdive_id, domain, id_source FROM strains WHERE species = ? ORDER BY strain_id`, species)
}

func (d *DB) strains(ctx context.Context, query string, args ...any) ([]Strain, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query strains: %w", err)
	}
	defer rows.Close()

	var out []Strain
	for rows.Next() {
		var s Strain
		if err := rows.Scan(&s.ID, &s.Species, &s.CCNo, &s.BacDiveID, &s.Domain, &s.IDSource); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SpeciesCount is a distinct species with its strain count.
type SpeciesCount struct {
	Species string `json:"species"`
	Domain  string `json:"domain"`
	Strains int    `json:"strains"`
}

// SpeciesWithStrains lists species ordered by how many strains they have.
func (d *DB) SpeciesWithStrains(ctx context.Context, domain string, limit int) ([]SpeciesCount, error) {
	query := `
		SELECT species, COALESCE(domain, ''), COUNT(strain_id)
		FROM strains
		WHERE species IS NOT NULL AND species <> ''`
	var args []any
	if domain != "" {
		query += ` AND domain = ?`
		args = append(args, domain)
	}
	query += ` GROUP BY species, domain ORDER BY COUNT(strain_id) DESC, species`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query species: %w", err)
	}
	defer rows.Close()

	var out []SpeciesCount
	for rows.Next() {
		var sc SpeciesCount
		if err := rows.Scan(&sc.Species, &sc.Domain, &sc.Strains); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// --- Growth ---

// AllGrowth returns every strain growth observation.
func (d *DB) AllGrowth(ctx context.Context) ([]Growth, error) {
	return d.growth(ctx, `
		SELECT strain_id, media_id, growth, growth_rate, growth_quality, modification
		FROM strain_growth ORDER BY strain_id, media_id`)
}

// GrowthForStrain returns the observations for one strain.
func (d *DB) GrowthForStrain(ctx context.Context, strainID int64) ([]Growth, error) {
	return d.growth(ctx, `
		SELECT strain_id, media_id, growth, growth_rate, growth_quality, modification
		FROM strain_growth WHERE strain_id = ? ORDER BY media_id`, strainID)
}

func (d *DB) growth(ctx context.Context, query string, args ...any) ([]Growth, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query growth: %w", err)
	}
	defer rows.Close()

	var out []Growth
	for rows.Next() {
		var g Growth
		if err := rows.Scan(&g.StrainID, &g.MediaID, &g.Growth, &g.GrowthRate,
			&g.GrowthQuality, &g.Modification); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- Genomes ---

const genomeColumns = `genome_id, strain_id, organism_name, organism_type, taxid, gc_content, sequence_length, fasta_path`

// Genomes returns genomes, optionally restricted to one organism type.
func (d *DB) Genomes(ctx context.Context, organismType string) ([]Genome, error) {
	query := `SELECT ` + genomeColumns + ` FROM genomes`
	var args []any
	if organismType != "" {
		query += ` WHERE organism_type = ?`
		args = append(args, organismType)
	}
	query += ` ORDER BY genome_id`
	return d.genomes(ctx, query, args...)
}

// GenomesWithoutEmbedding returns genomes with a FASTA path and no vector
// for the given method.
func (d *DB) GenomesWithoutEmbedding(ctx context.Context, method string) ([]Genome, error) {
	return d.genomes(ctx, `
		SELECT `+genomeColumns+` FROM genomes g
		WHERE g.fasta_path IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM genome_embeddings e WHERE e.genome_id = g.genome_id AND e.method = ?)
		ORDER BY g.genome_id`, method)
}

// LinkedGenomes returns genomes that are linked to a strain.
func (d *DB) LinkedGenomes(ctx context.Context) ([]Genome, error) {
	return d.genomes(ctx, `SELECT `+genomeColumns+` FROM genomes WHERE strain_id IS NOT NULL ORDER BY genome_id`)
}

// GenomesMatching returns genomes whose organism name contains pattern,
// ignoring case.
func (d *DB) GenomesMatching(ctx context.Context, pattern string) ([]Genome, error) {
	return d.genomes(ctx, `SELECT `+genomeColumns+` FROM genomes
		WHERE LOWER(organism_name) LIKE ? ORDER BY genome_id`, "%"+strings.ToLower(pattern)+"%")
}

func (d *DB) genomes(ctx context.Context, query string, args ...any) ([]Genome, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query genomes: %w", err)
	}
	defer rows.Close()

	var out []Genome
	for rows.Next() {
		var g Genome
		if err := rows.Scan(&g.ID, &g.StrainID, &g.OrganismName, &g.OrganismType, &g.TaxID,
			&g.GCContent, &g.SequenceLength, &g.FastaPath); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GenomeGrowthRows returns genome growth labels, optionally for one source.
func (d *DB) GenomeGrowthRows(ctx context.Context, source string) ([]GenomeGrowth, error) {
	query := `SELECT genome_id, media_id, growth, growth_rate, confidence, source FROM genome_growth`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY genome_id, media_id, source`
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query genome growth: %w", err)
	}
	defer rows.Close()

	var out []GenomeGrowth
	for rows.Next() {
		var g GenomeGrowth
		if err := rows.Scan(&g.GenomeID, &g.MediaID, &g.Growth, &g.GrowthRate, &g.Confidence, &g.Source); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GenomeGrowthBySource counts genome growth labels per source.
func (d *DB) GenomeGrowthBySource(ctx context.Context) (map[string]int, error) {
	rows, err := d.Query(ctx, `SELECT source, COUNT(*) FROM genome_growth GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("count genome growth: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		out[src] = n
	}
	return out, rows.Err()
}

// LinkedGrowth is a strain observation seen through a genome linked to that
// strain.
type LinkedGrowth struct {
	GenomeID string `json:"genome_id"`
	Growth
}

// LinkedGenomeGrowth joins strain growth onto the genomes linked to each
// strain.
func (d *DB) LinkedGenomeGrowth(ctx context.Context) ([]LinkedGrowth, error) {
	rows, err := d.Query(ctx, `
		SELECT g.genome_id, sg.strain_id, sg.media_id, sg.growth, sg.growth_rate,
			sg.growth_quality, sg.modification
		FROM genomes g
		JOIN strain_growth sg ON sg.strain_id = g.strain_id
		ORDER BY g.genome_id, sg.media_id`)
	if err != nil {
		return nil, fmt.Errorf("query linked growth: %w", err)
	}
	defer rows.Close()

	var out []LinkedGrowth
	for rows.Next() {
		var lg LinkedGrowth
		if err := rows.Scan(&lg.GenomeID, &lg.StrainID, &lg.MediaID, &lg.Growth, &lg.GrowthRate,
			&lg.GrowthQuality, &lg.Modification); err != nil {
			return nil, err
		}
		out = append(out, lg)
	}
	return out, rows.Err()
}

// Embeddings returns all vectors for one method keyed by genome id.
func (d *DB) Embeddings(ctx context.Context, method string) (map[string][]float32, error) {
	rows, err := d.Query(ctx, `SELECT genome_id, dim, vector FROM genome_embeddings WHERE method = ?`, method)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var (
			id  string
			dim int
			raw []byte
		)
		if err := rows.Scan(&id, &dim, &raw); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(raw, dim)
		if err != nil {
			return nil, fmt.Errorf("genome %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// --- helpers ---

func (d *DB) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) int64Column(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Reference data is first-writer-wins: a re-fetch never duplicates or
// rewrites rows that already exist.

func InsertMedium(ctx context.Context, q Querier, m Medium) error {
	_, err := q.Exec(ctx, `
		INSERT INTO media (media_id, media_name, complex_medium, source, link,
			min_ph, max_ph, reference, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_id) DO NOTHING`,
		m.ID, m.Name, boolInt(m.Complex), m.Source, m.Link,
		m.MinPH, m.MaxPH, m.Reference, m.Description)
	if err != nil {
		return fmt.Errorf("insert medium %s: %w", m.ID, err)
	}
	return nil
}

// MarkMediumDetailFetched sets the detail marker for a medium.
func MarkMediumDetailFetched(ctx context.Context, q Querier, mediaID string) error {
	_, err := q.Exec(ctx, `UPDATE media SET fetched_detail = 1 WHERE media_id = ?`, mediaID)
	if err != nil {
		return fmt.Errorf("mark medium %s fetched: %w", mediaID, err)
	}
	return nil
}

func InsertIngredient(ctx context.Context, q Querier, in Ingredient) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ingredients (ingredient_id, ingredient_name, chebi, cas_rn,
			pubchem, molar_mass, formula, density)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ingredient_id) DO NOTHING`,
		in.ID, in.Name, in.ChEBI, in.CASRN, in.PubChem, in.MolarMass, in.Formula, in.Density)
	if err != nil {
		return fmt.Errorf("insert ingredient %d: %w", in.ID, err)
	}
	return nil
}

func InsertSolution(ctx context.Context, q Querier, s Solution) error {
	_, err := q.Exec(ctx, `
		INSERT INTO solutions (solution_id, solution_name, volume_ml)
		VALUES (?, ?, ?)
		ON CONFLICT (solution_id) DO NOTHING`,
		s.ID, s.Name, s.VolumeML)
	if err != nil {
		return fmt.Errorf("insert solution %d: %w", s.ID, err)
	}
	return nil
}

func LinkMediumSolution(ctx context.Context, q Querier, mediaID string, solutionID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO media_solutions (media_id, solution_id)
		VALUES (?, ?)
		ON CONFLICT (media_id, solution_id) DO NOTHING`,
		mediaID, solutionID)
	if err != nil {
		return fmt.Errorf("link medium %s to solution %d: %w", mediaID, solutionID, err)
	}
	return nil
}

func InsertRecipeLine(ctx context.Context, q Querier, l RecipeLine) error {
	_, err := q.Exec(ctx, `
		INSERT INTO solution_recipe (solution_id, recipe_order, ingredient_id,
			ingredient_name, amount, unit, g_per_l, mmol_per_l, is_optional,
			condition_note, sub_solution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (solution_id, recipe_order) DO NOTHING`,
		l.SolutionID, l.Order, l.IngredientID, l.IngredientName, l.Amount, l.Unit,
		nonNegative(l.GPerL), nonNegative(l.MmolPerL), boolInt(l.Optional),
		l.Condition, l.SubSolutionID)
	if err != nil {
		return fmt.Errorf("insert recipe line %d/%d: %w", l.SolutionID, l.Order, err)
	}
	return nil
}

func InsertStep(ctx context.Context, q Querier, s Step) error {
	_, err := q.Exec(ctx, `
		INSERT INTO solution_steps (solution_id, step_order, step_text)
		VALUES (?, ?, ?)
		ON CONFLICT (solution_id, step_order) DO NOTHING`,
		s.SolutionID, s.Order, s.Text)
	if err != nil {
		return fmt.Errorf("insert step %d/%d: %w", s.SolutionID, s.Order, err)
	}
	return nil
}

func InsertComposition(ctx context.Context, q Querier, c Composition) error {
	_, err := q.Exec(ctx, `
		INSERT INTO media_composition (media_id, ingredient_id, ingredient_name,
			g_per_l, mmol_per_l, is_optional)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_id, ingredient_id) DO NOTHING`,
		c.MediaID, c.IngredientID, c.IngredientName,
		nonNegative(c.GPerL), nonNegative(c.MmolPerL), boolInt(c.Optional))
	if err != nil {
		return fmt.Errorf("insert composition %s/%d: %w", c.MediaID, c.IngredientID, err)
	}
	return nil
}

// UpsertStrain inserts a strain or fills in any of its unknown fields.
// Known values are never replaced by nulls.
func UpsertStrain(ctx context.Context, q Querier, s Strain) error {
	_, err := q.Exec(ctx, `
		INSERT INTO strains (strain_id, species, ccno, bacdive_id, domain, id_source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (strain_id) DO UPDATE SET
			species    = COALESCE(excluded.species, strains.species),
			ccno       = COALESCE(excluded.ccno, strains.ccno),
			bacdive_id = COALESCE(excluded.bacdive_id, strains.bacdive_id),
			domain     = COALESCE(excluded.domain, strains.domain),
			id_source  = COALESCE(strains.id_source, excluded.id_source)`,
		s.ID, s.Species, s.CCNo, s.BacDiveID, s.Domain, s.IDSource)
	if err != nil {
		return fmt.Errorf("upsert strain %d: %w", s.ID, err)
	}
	return nil
}

// GrowthFlagPolicy decides what happens to an existing growth flag when the
// same (strain, medium) pair is written again. Secondary fields are always
// coalesced.
type GrowthFlagPolicy int

const (
	// KeepGrowthFlag leaves an existing flag untouched (medium-centric path).
	KeepGrowthFlag GrowthFlagPolicy = iota
	// OverwriteGrowthFlag replaces the flag (strain-detail path, authoritative).
	OverwriteGrowthFlag
)

func UpsertGrowth(ctx context.Context, q Querier, g Growth, policy GrowthFlagPolicy) error {
	flag := "growth = strain_growth.growth"
	if policy == OverwriteGrowthFlag {
		flag = "growth = excluded.growth"
	}
	_, err := q.Exec(ctx, `
		INSERT INTO strain_growth (strain_id, media_id, growth, growth_rate,
			growth_quality, modification)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (strain_id, media_id) DO UPDATE SET
			`+flag+`,
			growth_rate    = COALESCE(excluded.growth_rate, strain_growth.growth_rate),
			growth_quality = COALESCE(excluded.growth_quality, strain_growth.growth_quality),
			modification   = COALESCE(excluded.modification, strain_growth.modification)`,
		g.StrainID, g.MediaID, boolInt(g.Growth), g.GrowthRate, g.GrowthQuality, g.Modification)
	if err != nil {
		return fmt.Errorf("upsert growth %d/%s: %w", g.StrainID, g.MediaID, err)
	}
	return nil
}

// InsertGenome adds a genome record if its id is new. It reports whether a
// row was inserted.
func InsertGenome(ctx context.Context, q Querier, g Genome) (bool, error) {
	if !ValidOrganismType(g.OrganismType) {
		return false, fmt.Errorf("genome %s: invalid organism type %q", g.ID, g.OrganismType)
	}
	res, err := q.Exec(ctx, `
		INSERT INTO genomes (genome_id, strain_id, organism_name, organism_type,
			taxid, gc_content, sequence_length, fasta_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (genome_id) DO NOTHING`,
		g.ID, g.StrainID, g.OrganismName, g.OrganismType, g.TaxID,
		g.GCContent, g.SequenceLength, g.FastaPath)
	if err != nil {
		return false, fmt.Errorf("insert genome %s: %w", g.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateGenomeStats fills sequence-derived columns after the FASTA is read.
func UpdateGenomeStats(ctx context.Context, q Querier, genomeID string, gc float64, length int64) error {
	_, err := q.Exec(ctx, `UPDATE genomes SET gc_content = ?, sequence_length = ? WHERE genome_id = ?`,
		gc, length, genomeID)
	if err != nil {
		return fmt.Errorf("update genome %s stats: %w", genomeID, err)
	}
	return nil
}

// LinkGenomeStrain sets the strain for a genome that has none yet.
func LinkGenomeStrain(ctx context.Context, q Querier, genomeID string, strainID int64) error {
	_, err := q.Exec(ctx, `UPDATE genomes SET strain_id = ? WHERE genome_id = ? AND strain_id IS NULL`,
		strainID, genomeID)
	if err != nil {
		return fmt.Errorf("link genome %s to strain %d: %w", genomeID, strainID, err)
	}
	return nil
}

// UpsertGenomeGrowth replaces any prior label from the same source.
func UpsertGenomeGrowth(ctx context.Context, q Querier, g GenomeGrowth) error {
	_, err := q.Exec(ctx, `
		INSERT INTO genome_growth (genome_id, media_id, growth, growth_rate, confidence, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (genome_id, media_id, source) DO UPDATE SET
			growth = excluded.growth,
			growth_rate = excluded.growth_rate,
			confidence = excluded.confidence`,
		g.GenomeID, g.MediaID, boolInt(g.Growth), g.GrowthRate, g.Confidence, g.Source)
	if err != nil {
		return fmt.Errorf("upsert genome growth %s/%s/%s: %w", g.GenomeID, g.MediaID, g.Source, err)
	}
	return nil
}

// UpsertEmbedding stores a vector, replacing any earlier one for the method.
func UpsertEmbedding(ctx context.Context, q Querier, e Embedding) error {
	_, err := q.Exec(ctx, `
		INSERT INTO genome_embeddings (genome_id, method, dim, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (genome_id, method) DO UPDATE SET
			dim = excluded.dim,
			vector = excluded.vector,
			created_at = excluded.created_at`,
		e.GenomeID, e.Method, len(e.Vector), EncodeVector(e.Vector), Now())
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%s: %w", e.GenomeID, e.Method, err)
	}
	return nil
}

// EncodeVector packs a vector as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("embedding blob is %d bytes, want %d for dim %d", len(b), 4*dim, dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nonNegative drops negative concentrations, which upstream occasionally
// reports for placeholder rows.
func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 || math.IsNaN(*v) {
		return nil
	}
	return v
}

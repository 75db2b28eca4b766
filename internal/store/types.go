package store

// Medium is one growth medium.
type Medium struct {
	ID            string   `json:"media_id"`
	Name          string   `json:"media_name"`
	Complex       bool     `json:"complex_medium"`
	Source        *string  `json:"source,omitempty"`
	Link          *string  `json:"link,omitempty"`
	MinPH         *float64 `json:"min_ph,omitempty"`
	MaxPH         *float64 `json:"max_ph,omitempty"`
	Reference     *string  `json:"reference,omitempty"`
	Description   *string  `json:"description,omitempty"`
	FetchedDetail bool     `json:"fetched_detail"`
}

// Ingredient is a chemical compound usable in a recipe.
type Ingredient struct {
	ID        int64    `json:"ingredient_id"`
	Name      string   `json:"ingredient_name"`
	ChEBI     *string  `json:"chebi,omitempty"`
	CASRN     *string  `json:"cas_rn,omitempty"`
	PubChem   *string  `json:"pubchem,omitempty"`
	MolarMass *float64 `json:"molar_mass,omitempty"`
	Formula   *string  `json:"formula,omitempty"`
	Density   *float64 `json:"density,omitempty"`
}

// Solution is a sub-recipe shared between media.
type Solution struct {
	ID       int64    `json:"solution_id"`
	Name     string   `json:"solution_name"`
	VolumeML *float64 `json:"volume_ml,omitempty"`
}

// RecipeLine is one ordered ingredient quantity within a solution.
// IngredientID and SubSolutionID are soft references: the ingredient list
// and the referenced solution may be ingested later.
type RecipeLine struct {
	SolutionID     int64    `json:"solution_id"`
	Order          int      `json:"recipe_order"`
	IngredientID   *int64   `json:"ingredient_id,omitempty"`
	IngredientName string   `json:"ingredient_name"`
	Amount         *float64 `json:"amount,omitempty"`
	Unit           *string  `json:"unit,omitempty"`
	GPerL          *float64 `json:"g_per_l,omitempty"`
	MmolPerL       *float64 `json:"mmol_per_l,omitempty"`
	Optional       bool     `json:"is_optional"`
	Condition      *string  `json:"condition,omitempty"`
	SubSolutionID  *int64   `json:"sub_solution_id,omitempty"`
}

// Step is an ordered preparation instruction for a solution.
type Step struct {
	SolutionID int64  `json:"solution_id"`
	Order      int    `json:"step_order"`
	Text       string `json:"step_text"`
}

// Composition is the flattened (medium, ingredient) concentration.
type Composition struct {
	MediaID        string   `json:"media_id"`
	IngredientID   int64    `json:"ingredient_id"`
	IngredientName string   `json:"ingredient_name"`
	GPerL          *float64 `json:"g_per_l,omitempty"`
	MmolPerL       *float64 `json:"mmol_per_l,omitempty"`
	Optional       bool     `json:"is_optional"`
}

// Strain ID sources. Strain ids from different catalogues share one column,
// so the origin of each row is recorded.
const (
	StrainSourceMediaDive = "mediadive"
	StrainSourceBacDive   = "bacdive"
)

// Strain is a cultured isolate. Nil fields are unknown.
type Strain struct {
	ID        int64   `json:"strain_id"`
	Species   *string `json:"species,omitempty"`
	CCNo      *string `json:"ccno,omitempty"`
	BacDiveID *int64  `json:"bacdive_id,omitempty"`
	Domain    *string `json:"domain,omitempty"`
	IDSource  *string `json:"id_source,omitempty"`
}

// Growth is one strain-on-medium observation.
type Growth struct {
	StrainID      int64   `json:"strain_id"`
	MediaID       string  `json:"media_id"`
	Growth        bool    `json:"growth"`
	GrowthRate    *string `json:"growth_rate,omitempty"`
	GrowthQuality *string `json:"growth_quality,omitempty"`
	Modification  *string `json:"modification,omitempty"`
}

// Organism types a genome may belong to.
const (
	OrganismBacteria = "bacteria"
	OrganismArchaea  = "archaea"
	OrganismFungi    = "fungi"
	OrganismProtist  = "protist"
	OrganismVirus    = "virus"
)

// OrganismTypes lists the valid organism types in curriculum order.
var OrganismTypes = []string{OrganismBacteria, OrganismArchaea, OrganismFungi, OrganismProtist, OrganismVirus}

// ValidOrganismType reports whether t is one of OrganismTypes.
func ValidOrganismType(t string) bool {
	for _, o := range OrganismTypes {
		if o == t {
			return true
		}
	}
	return false
}

// Genome is a sequenced organism, optionally linked to a strain.
type Genome struct {
	ID             string   `json:"genome_id"`
	StrainID       *int64   `json:"strain_id,omitempty"`
	OrganismName   string   `json:"organism_name"`
	OrganismType   string   `json:"organism_type"`
	TaxID          *int64   `json:"taxid,omitempty"`
	GCContent      *float64 `json:"gc_content,omitempty"`
	SequenceLength *int64   `json:"sequence_length,omitempty"`
	FastaPath      *string  `json:"fasta_path,omitempty"`
}

// Provenance tags for genome-level growth.
const (
	GrowthSourceLiterature = "literature"
	GrowthSourceInferred   = "inferred"
	GrowthSourceCurated    = "curated"
	GrowthSourcePropagated = "propagated"
)

// GenomeGrowth is a genome-on-medium label with provenance and confidence.
type GenomeGrowth struct {
	GenomeID   string  `json:"genome_id"`
	MediaID    string  `json:"media_id"`
	Growth     bool    `json:"growth"`
	GrowthRate *string `json:"growth_rate,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Embedding is a fixed-length vector for one (genome, method) pair.
type Embedding struct {
	GenomeID string    `json:"genome_id"`
	Method   string    `json:"method"`
	Vector   []float32 `json:"vector"`
}

// TableCount is one row of the end-of-run summary.
type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

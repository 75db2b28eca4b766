package mediadive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The MediaDive API is loose about scalar types: ids arrive as numbers or
// strings, flags as booleans, 0/1 or "yes", and missing values as null or
// "". The Opt* types absorb that at decode time.

// OptString is a string or number that may be absent.
type OptString struct {
	Value string
	Valid bool
}

func (o *OptString) UnmarshalJSON(b []byte) error {
	*o = OptString{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s != "" {
			*o = OptString{Value: s, Valid: true}
		}
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return fmt.Errorf("expected string or number, got %s", truncate(b))
	}
	*o = OptString{Value: string(b), Valid: true}
	return nil
}

// Ptr returns nil when the value is absent.
func (o OptString) Ptr() *string {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// OptInt is an integer given as a number or numeric string.
type OptInt struct {
	Value int64
	Valid bool
}

func (o *OptInt) UnmarshalJSON(b []byte) error {
	var s OptString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*o = OptInt{}
	if !s.Valid {
		return nil
	}
	n, err := strconv.ParseInt(s.Value, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s.Value, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("invalid integer %q", s.Value)
		}
		n = int64(f)
	}
	*o = OptInt{Value: n, Valid: true}
	return nil
}

func (o OptInt) Ptr() *int64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// OptFloat is a number or numeric string. Unparseable text is treated as
// absent rather than failing the whole record.
type OptFloat struct {
	Value float64
	Valid bool
}

func (o *OptFloat) UnmarshalJSON(b []byte) error {
	var s OptString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*o = OptFloat{}
	if !s.Valid {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s.Value, ",", "."), 64)
	if err != nil {
		return nil
	}
	*o = OptFloat{Value: f, Valid: true}
	return nil
}

func (o OptFloat) Ptr() *float64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// Flag is a boolean given as true/false, 0/1 or a yes/no word.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	*f = false
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		return nil
	case bytes.Equal(b, []byte("true")):
		*f = true
		return nil
	}
	var s OptString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	switch strings.ToLower(s.Value) {
	case "1", "yes", "y", "true", "+", "positive":
		*f = true
	default:
		if n, err := strconv.ParseFloat(s.Value, 64); err == nil && n != 0 {
			*f = true
		}
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > 40 {
		return string(b[:40]) + "..."
	}
	return string(b)
}

// MediumSummary is one item of /media.
type MediumSummary struct {
	ID            OptString `json:"id"`
	Name          string    `json:"name"`
	ComplexMedium Flag      `json:"complex_medium"`
	Source        OptString `json:"source"`
	Link          OptString `json:"link"`
	MinPH         OptFloat  `json:"min_pH"`
	MaxPH         OptFloat  `json:"max_pH"`
	Reference     OptString `json:"reference"`
	Description   OptString `json:"description"`
}

// MediumDetail is the data object of /medium/:id.
type MediumDetail struct {
	Medium    json.RawMessage `json:"medium"`
	Solutions []Solution      `json:"solutions"`
}

// Solution appears inside a medium detail, in /solutions and in
// /solution/:id.
type Solution struct {
	ID     OptInt       `json:"id"`
	Name   string       `json:"name"`
	Volume OptFloat     `json:"volume"`
	Recipe []RecipeLine `json:"recipe"`
	Steps  []Step       `json:"steps"`
}

// RecipeLine is one ingredient of a solution. SolutionID references a
// nested sub-solution.
type RecipeLine struct {
	RecipeOrder OptInt    `json:"recipe_order"`
	CompoundID  OptInt    `json:"compound_id"`
	Compound    string    `json:"compound"`
	Amount      OptFloat  `json:"amount"`
	Unit        OptString `json:"unit"`
	GL          OptFloat  `json:"g_l"`
	MmolL       OptFloat  `json:"mmol_l"`
	Optional    Flag      `json:"optional"`
	Condition   OptString `json:"condition"`
	SolutionID  OptInt    `json:"solution_id"`
}

// Step is a preparation instruction.
type Step struct {
	Step string `json:"step"`
}

// Ingredient is one item of /ingredients.
type Ingredient struct {
	ID      OptInt    `json:"id"`
	Name    string    `json:"name"`
	ChEBI   OptString `json:"ChEBI"`
	CASRN   OptString `json:"CAS-RN"`
	PubChem OptString `json:"PubChem"`
	Mass    OptFloat  `json:"mass"`
	Formula OptString `json:"formula"`
	Density OptFloat  `json:"density"`
}

// CompositionItem is one entry of /medium-composition/:id.
type CompositionItem struct {
	ID       OptInt   `json:"id"`
	Name     string   `json:"name"`
	GL       OptFloat `json:"g_l"`
	MmolL    OptFloat `json:"mmol_l"`
	Optional Flag     `json:"optional"`
}

// MediumStrain is one entry of /medium-strains/:id.
type MediumStrain struct {
	ID        OptInt    `json:"id"`
	Species   OptString `json:"species"`
	CCNo      OptString `json:"ccno"`
	BacDiveID OptInt    `json:"bacdive_id"`
	Domain    OptString `json:"domain"`
	Growth    Flag      `json:"growth"`
}

// StrainDetail is the data object of /strain/id/:id.
type StrainDetail struct {
	ID      OptInt         `json:"id"`
	Species OptString      `json:"species"`
	CCNo    OptString      `json:"ccno"`
	Media   []StrainMedium `json:"media"`
}

// StrainMedium is one growth observation from the strain side.
type StrainMedium struct {
	MediumID      OptString `json:"medium_id"`
	Growth        Flag      `json:"growth"`
	GrowthRate    OptString `json:"growth_rate"`
	GrowthQuality OptString `json:"growth_quality"`
	Modification  OptString `json:"modification"`
}

package mediadive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vthunder/culturedb/internal/apiclient"
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/store"
)

// FetchMediaList stores every medium from the paginated /media endpoint.
func (in *Ingester) FetchMediaList(ctx context.Context) ledger.UnitResult {
	return in.runList(ctx, ledger.MediaList, "/media", nil,
		func(ctx context.Context, tx *store.Tx, items []json.RawMessage) (int, error) {
			n := 0
			for _, m := range decodeItems[MediumSummary]("/media", items) {
				if !m.ID.Valid {
					logging.Warn("mediadive", "/media: skipping medium without id (%q)", m.Name)
					continue
				}
				err := store.InsertMedium(ctx, tx, store.Medium{
					ID:          m.ID.Value,
					Name:        m.Name,
					Complex:     bool(m.ComplexMedium),
					Source:      m.Source.Ptr(),
					Link:        m.Link.Ptr(),
					MinPH:       m.MinPH.Ptr(),
					MaxPH:       m.MaxPH.Ptr(),
					Reference:   m.Reference.Ptr(),
					Description: m.Description.Ptr(),
				})
				if err != nil {
					return n, err
				}
				n++
			}
			return n, nil
		})
}

// FetchMediumDetail stores the solutions, recipe lines and steps of one
// medium, then flags the medium as fetched, all in one transaction.
func (in *Ingester) FetchMediumDetail(ctx context.Context, mediaID string) ledger.UnitResult {
	endpoint := "/medium/" + mediaID
	return in.runUnit(ctx, ledger.MediumDetail, ledger.UnitTask(ledger.MediumDetail, mediaID),
		func(ctx context.Context) (writeFunc, error) {
			var detail MediumDetail
			if err := in.detail(ctx, endpoint, &detail); err != nil {
				return nil, err
			}
			return func(ctx context.Context, tx *store.Tx) (int, error) {
				rows := 0
				for _, sol := range detail.Solutions {
					if !sol.ID.Valid {
						logging.Debug("mediadive", "%s: skipping solution without id", endpoint)
						continue
					}
					n, err := writeSolution(ctx, tx, sol, true)
					if err != nil {
						return rows, err
					}
					if err := store.LinkMediumSolution(ctx, tx, mediaID, sol.ID.Value); err != nil {
						return rows, err
					}
					rows += n + 1
				}
				if err := store.MarkMediumDetailFetched(ctx, tx, mediaID); err != nil {
					return rows, err
				}
				return rows, nil
			}, nil
		})
}

// writeSolution inserts a solution row (optionally) and its recipe lines
// and steps in order: solution, lines, steps.
func writeSolution(ctx context.Context, q store.Querier, sol Solution, insertRow bool) (int, error) {
	id := sol.ID.Value
	rows := 0
	if insertRow {
		if err := store.InsertSolution(ctx, q, store.Solution{ID: id, Name: sol.Name, VolumeML: sol.Volume.Ptr()}); err != nil {
			return rows, err
		}
		rows++
	}
	for i, item := range sol.Recipe {
		order := int(item.RecipeOrder.Value)
		if !item.RecipeOrder.Valid {
			order = i + 1
		}
		err := store.InsertRecipeLine(ctx, q, store.RecipeLine{
			SolutionID:     id,
			Order:          order,
			IngredientID:   item.CompoundID.Ptr(),
			IngredientName: item.Compound,
			Amount:         item.Amount.Ptr(),
			Unit:           item.Unit.Ptr(),
			GPerL:          item.GL.Ptr(),
			MmolPerL:       item.MmolL.Ptr(),
			Optional:       bool(item.Optional),
			Condition:      item.Condition.Ptr(),
			SubSolutionID:  item.SolutionID.Ptr(),
		})
		if err != nil {
			return rows, err
		}
		rows++
	}
	for i, step := range sol.Steps {
		if err := store.InsertStep(ctx, q, store.Step{SolutionID: id, Order: i + 1, Text: step.Step}); err != nil {
			return rows, err
		}
		rows++
	}
	return rows, nil
}

// FetchIngredientList stores every ingredient from /ingredients.
func (in *Ingester) FetchIngredientList(ctx context.Context) ledger.UnitResult {
	return in.runList(ctx, ledger.IngredientList, "/ingredients", nil,
		func(ctx context.Context, tx *store.Tx, items []json.RawMessage) (int, error) {
			n := 0
			for _, ing := range decodeItems[Ingredient]("/ingredients", items) {
				if !ing.ID.Valid {
					logging.Warn("mediadive", "/ingredients: skipping ingredient without id (%q)", ing.Name)
					continue
				}
				err := store.InsertIngredient(ctx, tx, store.Ingredient{
					ID:        ing.ID.Value,
					Name:      ing.Name,
					ChEBI:     ing.ChEBI.Ptr(),
					CASRN:     ing.CASRN.Ptr(),
					PubChem:   ing.PubChem.Ptr(),
					MolarMass: ing.Mass.Ptr(),
					Formula:   ing.Formula.Ptr(),
					Density:   ing.Density.Ptr(),
				})
				if err != nil {
					return n, err
				}
				n++
			}
			return n, nil
		})
}

// FetchMediumComposition stores the flattened molecular composition of one
// medium.
func (in *Ingester) FetchMediumComposition(ctx context.Context, mediaID string) ledger.UnitResult {
	endpoint := "/medium-composition/" + mediaID
	return in.runUnit(ctx, ledger.Composition, ledger.UnitTask(ledger.Composition, mediaID),
		func(ctx context.Context) (writeFunc, error) {
			raw, err := in.detailList(ctx, endpoint)
			if err != nil {
				return nil, err
			}
			items := decodeItems[CompositionItem](endpoint, raw)
			return func(ctx context.Context, tx *store.Tx) (int, error) {
				n := 0
				for _, item := range items {
					if !item.ID.Valid {
						logging.Debug("mediadive", "%s: skipping item without id (%q)", endpoint, item.Name)
						continue
					}
					err := store.InsertComposition(ctx, tx, store.Composition{
						MediaID:        mediaID,
						IngredientID:   item.ID.Value,
						IngredientName: item.Name,
						GPerL:          item.GL.Ptr(),
						MmolPerL:       item.MmolL.Ptr(),
						Optional:       bool(item.Optional),
					})
					if err != nil {
						return n, err
					}
					n++
				}
				return n, nil
			}, nil
		})
}

// FetchSolutionList stores every solution, including main solutions.
func (in *Ingester) FetchSolutionList(ctx context.Context) ledger.UnitResult {
	return in.runList(ctx, ledger.SolutionList, "/solutions", apiclient.Params{"all": "1"},
		func(ctx context.Context, tx *store.Tx, items []json.RawMessage) (int, error) {
			n := 0
			for _, sol := range decodeItems[Solution]("/solutions", items) {
				if !sol.ID.Valid {
					continue
				}
				if err := store.InsertSolution(ctx, tx, store.Solution{ID: sol.ID.Value, Name: sol.Name, VolumeML: sol.Volume.Ptr()}); err != nil {
					return n, err
				}
				n++
			}
			return n, nil
		})
}

// FetchSolutionDetail stores the recipe lines and steps of one solution.
func (in *Ingester) FetchSolutionDetail(ctx context.Context, solutionID int64) ledger.UnitResult {
	endpoint := fmt.Sprintf("/solution/%d", solutionID)
	return in.runUnit(ctx, ledger.SolutionDetail, ledger.UnitTask(ledger.SolutionDetail, solutionID),
		func(ctx context.Context) (writeFunc, error) {
			var sol Solution
			if err := in.detail(ctx, endpoint, &sol); err != nil {
				return nil, err
			}
			sol.ID = OptInt{Value: solutionID, Valid: true}
			return func(ctx context.Context, tx *store.Tx) (int, error) {
				return writeSolution(ctx, tx, sol, false)
			}, nil
		})
}

// FetchMediumStrains stores the strains tested on one medium and their
// growth flags. An existing growth flag is left alone.
func (in *Ingester) FetchMediumStrains(ctx context.Context, mediaID string) ledger.UnitResult {
	endpoint := "/medium-strains/" + mediaID
	return in.runUnit(ctx, ledger.MediumStrains, ledger.UnitTask(ledger.MediumStrains, mediaID),
		func(ctx context.Context) (writeFunc, error) {
			raw, err := in.detailList(ctx, endpoint)
			if err != nil {
				return nil, err
			}
			items := decodeItems[MediumStrain](endpoint, raw)
			return func(ctx context.Context, tx *store.Tx) (int, error) {
				n := 0
				for _, s := range items {
					if !s.ID.Valid {
						logging.Debug("mediadive", "%s: skipping strain without id", endpoint)
						continue
					}
					if err := in.upsertMediaDiveStrain(ctx, tx, store.Strain{
						ID:        s.ID.Value,
						Species:   s.Species.Ptr(),
						CCNo:      s.CCNo.Ptr(),
						BacDiveID: s.BacDiveID.Ptr(),
						Domain:    s.Domain.Ptr(),
					}); errors.Is(err, ErrStrainOwned) {
						logging.Warn("mediadive", "%s: skipping strain: %v", endpoint, err)
						continue
					} else if err != nil {
						return n, err
					}
					err := store.UpsertGrowth(ctx, tx, store.Growth{
						StrainID: s.ID.Value,
						MediaID:  mediaID,
						Growth:   bool(s.Growth),
					}, store.KeepGrowthFlag)
					if err != nil {
						return n, err
					}
					n++
				}
				return n, nil
			}, nil
		})
}

// FetchStrainDetail enriches one strain and writes its growth observations
// from the strain side. This path is authoritative for the growth flag.
// Observations on media that are not in the catalogue are skipped.
func (in *Ingester) FetchStrainDetail(ctx context.Context, strainID int64) ledger.UnitResult {
	endpoint := fmt.Sprintf("/strain/id/%d", strainID)
	return in.runUnit(ctx, ledger.StrainDetail, ledger.UnitTask(ledger.StrainDetail, strainID),
		func(ctx context.Context) (writeFunc, error) {
			var detail StrainDetail
			if err := in.detail(ctx, endpoint, &detail); err != nil {
				return nil, err
			}
			return func(ctx context.Context, tx *store.Tx) (int, error) {
				if err := in.upsertMediaDiveStrain(ctx, tx, store.Strain{
					ID:      strainID,
					Species: detail.Species.Ptr(),
					CCNo:    detail.CCNo.Ptr(),
				}); err != nil {
					return 0, err
				}
				n := 1
				for _, m := range detail.Media {
					if !m.MediumID.Valid {
						continue
					}
					ok, err := store.MediaExists(ctx, tx, m.MediumID.Value)
					if err != nil {
						return n, err
					}
					if !ok {
						logging.Debug("mediadive", "strain %d: skipping growth on unknown medium %s", strainID, m.MediumID.Value)
						continue
					}
					err = store.UpsertGrowth(ctx, tx, store.Growth{
						StrainID:      strainID,
						MediaID:       m.MediumID.Value,
						Growth:        bool(m.Growth),
						GrowthRate:    m.GrowthRate.Ptr(),
						GrowthQuality: m.GrowthQuality.Ptr(),
						Modification:  m.Modification.Ptr(),
					}, store.OverwriteGrowthFlag)
					if err != nil {
						return n, err
					}
					n++
				}
				return n, nil
			}, nil
		})
}

// ErrStrainOwned reports a strain id already stored by another catalogue.
var ErrStrainOwned = errors.New("strain id owned by another catalogue")

// upsertMediaDiveStrain merges a strain seen in MediaDive. A row already
// owned by another catalogue is left to that catalogue and reported with
// ErrStrainOwned.
func (in *Ingester) upsertMediaDiveStrain(ctx context.Context, tx *store.Tx, s store.Strain) error {
	existing, err := store.GetStrain(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.IDSource != nil && *existing.IDSource != store.StrainSourceMediaDive {
		return fmt.Errorf("%w: strain id %d already belongs to %s", ErrStrainOwned, s.ID, *existing.IDSource)
	}
	src := store.StrainSourceMediaDive
	s.IDSource = &src
	return store.UpsertStrain(ctx, tx, s)
}

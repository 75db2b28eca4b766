package genome

import (
	"context"
	"strings"

	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/store"
)

// GrowthConfidence maps a recorded growth quality to the confidence of a
// label propagated from it.
func GrowthConfidence(quality *string) float64 {
	if quality == nil {
		return 0.75
	}
	switch strings.ToLower(strings.TrimSpace(*quality)) {
	case "excellent":
		return 0.95
	case "good":
		return 0.85
	case "fair":
		return 0.70
	case "poor":
		return 0.50
	}
	return 0.75
}

// PropagateGrowth copies the growth observations of every linked strain onto
// its genome under the propagated source. Rerunning replaces earlier
// propagated labels with the current strain data.
func PropagateGrowth(ctx context.Context, db *store.DB) (int, error) {
	rows, err := db.LinkedGenomeGrowth(ctx)
	if err != nil {
		return 0, err
	}
	err = db.InTx(ctx, func(tx *store.Tx) error {
		for _, r := range rows {
			if err := store.UpsertGenomeGrowth(ctx, tx, store.GenomeGrowth{
				GenomeID:   r.GenomeID,
				MediaID:    r.MediaID,
				Growth:     r.Growth.Growth,
				GrowthRate: r.GrowthRate,
				Confidence: GrowthConfidence(r.GrowthQuality),
				Source:     store.GrowthSourcePropagated,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logging.Info("genome", "Propagated %d strain growth records to genomes", len(rows))
	return len(rows), nil
}

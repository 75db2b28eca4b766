// Package tools registers the catalogue's MCP tools.
package tools

import (
	"github.com/vthunder/culturedb/internal/ledger"
	"github.com/vthunder/culturedb/internal/store"
)

// Dependencies holds what the tools read from.
type Dependencies struct {
	DB     *store.DB
	Ledger *ledger.Ledger

	// EmbeddingMethod is the default for similar_genomes.
	EmbeddingMethod string
	// MaxRows caps list results.
	MaxRows int
}

func (d *Dependencies) limit(n int64) int {
	max := d.MaxRows
	if max <= 0 {
		max = 200
	}
	if n <= 0 || int(n) > max {
		return max
	}
	return int(n)
}

package reconcile

import (
	"context"
	"fmt"

	"github.com/colm-brandon-ul/cellmaps/internal/config"
	"github.com/colm-brandon-ul/cellmaps/internal/growth"
	"github.com/colm-brandon-ul/cellmaps/internal/labels"
	"github.com/colm-brandon-ul/cellmaps/internal/monitoring"
)

// Prepare conditions a raw model mask before reconciliation. When
// relabel_inputs is set the mask is binarised, split into 8-connected
// components and grown by erode_width pixels to undo the model's edge
// erosion. Otherwise a is returned unchanged.
func Prepare(ctx context.Context, a labels.Array, cfg *config.ReconcileConfig) (labels.Array, error) {
	if cfg == nil || !cfg.GetRelabelInputs() {
		return a, nil
	}
	relabelled, n := labels.Relabel(a)
	monitoring.Logf("reconcile: relabelled %d components", n)

	out, err := growth.Grower{Workers: cfg.GetWorkers()}.Grow(ctx, relabelled, cfg.GetErodeWidth())
	if err != nil {
		return labels.Array{}, fmt.Errorf("erosion-edge correction: %w", err)
	}
	return out, nil
}

package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colm-brandon-ul/cellmaps/internal/config"
	"github.com/colm-brandon-ul/cellmaps/internal/monitoring"
	"github.com/colm-brandon-ul/cellmaps/internal/testutil"
)

func TestPrepare(t *testing.T) {
	raw := [][]int{{9, 0, 0, 0, 0, 0, 4}}

	t.Run("disabled", func(t *testing.T) {
		out, err := Prepare(context.Background(), testutil.Labels(t, raw), config.DefaultReconcileConfig())
		require.NoError(t, err)
		testutil.AssertLabels(t, raw, out)
	})

	t.Run("nil config", func(t *testing.T) {
		out, err := Prepare(context.Background(), testutil.Labels(t, raw), nil)
		require.NoError(t, err)
		testutil.AssertLabels(t, raw, out)
	})

	t.Run("relabel and correct erosion", func(t *testing.T) {
		defer monitoring.Mute()()
		cfg := config.DefaultReconcileConfig()
		on := true
		cfg.RelabelInputs = &on

		out, err := Prepare(context.Background(), testutil.Labels(t, raw), cfg)
		require.NoError(t, err)
		testutil.AssertLabels(t, [][]int{{1, 1, 0, 0, 0, 2, 2}}, out)
	})
}

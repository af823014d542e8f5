package overlap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colm-brandon-ul/cellmaps/internal/labels"
	"github.com/colm-brandon-ul/cellmaps/internal/monitoring"
	"github.com/colm-brandon-ul/cellmaps/internal/testutil"
)

func newMatcher(t *testing.T, nucleus, membrane labels.Array) *Matcher {
	t.Helper()
	m, err := NewMatcher(nucleus, membrane, labels.NewIndex(nucleus), labels.NewIndex(membrane))
	require.NoError(t, err)
	return m
}

func region(t *testing.T, a labels.Array, id uint32) labels.Region {
	t.Helper()
	reg, err := labels.NewIndex(a).Get(id)
	require.NoError(t, err)
	return reg
}

func TestMajorityOverlap_TieBreakSmallestID(t *testing.T) {
	nucleus := testutil.Labels(t, [][]int{
		{1, 1, 1, 1},
	})
	membrane := testutil.Labels(t, [][]int{
		{7, 7, 3, 3},
	})
	reg := region(t, nucleus, 1)

	// Map iteration order is random; repeat to catch order-dependent picks.
	for i := 0; i < 50; i++ {
		id, ok, err := MajorityOverlap(reg, nucleus, membrane)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint32(3), id, "iteration %d", i)
	}
}

func TestMajorityOverlap(t *testing.T) {
	tests := []struct {
		name     string
		nucleus  [][]int
		membrane [][]int
		wantID   uint32
		wantOK   bool
	}{
		{
			name:     "clear winner",
			nucleus:  [][]int{{1, 1, 1}},
			membrane: [][]int{{4, 4, 9}},
			wantID:   4,
			wantOK:   true,
		},
		{
			name:     "background does not count",
			nucleus:  [][]int{{1, 1, 1}},
			membrane: [][]int{{0, 0, 9}},
			wantID:   9,
			wantOK:   true,
		},
		{
			name:     "no overlap",
			nucleus:  [][]int{{1, 1, 0}},
			membrane: [][]int{{0, 0, 9}},
			wantOK:   false,
		},
		{
			name:     "other nuclei in the box are masked out",
			nucleus:  [][]int{{1, 2, 1}, {2, 2, 2}},
			membrane: [][]int{{5, 8, 5}, {8, 8, 8}},
			wantID:   5,
			wantOK:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nucleus := testutil.Labels(t, tt.nucleus)
			membrane := testutil.Labels(t, tt.membrane)

			id, ok, err := MajorityOverlap(region(t, nucleus, 1), nucleus, membrane)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestMajorityOverlap_Errors(t *testing.T) {
	nucleus := testutil.Labels(t, [][]int{{1, 1}})
	membrane := testutil.Labels(t, [][]int{{3, 3}})

	_, _, err := MajorityOverlap(labels.Region{ID: 1, Box: labels.BBox{RowMax: 4, ColMax: 4}}, nucleus, membrane)
	assert.ErrorIs(t, err, labels.ErrBounds)

	_, _, err = MajorityOverlap(labels.Region{ID: 1}, nucleus, membrane)
	assert.ErrorIs(t, err, labels.ErrBounds)

	_, _, err = MajorityOverlap(region(t, nucleus, 1), nucleus, labels.New(2, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestResolve_Matched(t *testing.T) {
	nucleus := testutil.Labels(t, [][]int{
		{1, 1, 0, 0},
		{1, 1, 0, 0},
		{0, 0, 0, 0},
	})
	membrane := testutil.Labels(t, [][]int{
		{10, 10, 10, 0},
		{10, 10, 10, 0},
		{10, 10, 10, 0},
	})
	m := newMatcher(t, nucleus, membrane)

	corr := m.Resolve(region(t, nucleus, 1))
	assert.Equal(t, Matched, corr.Status)
	assert.Equal(t, uint32(10), corr.MembraneID)
	assert.Empty(t, corr.Rivals)
	assert.False(t, corr.Status.Orphan())
}

func TestResolve_ContestedMembrane(t *testing.T) {
	nucleus := testutil.Labels(t, [][]int{
		{1, 1, 0, 2, 2},
		{1, 1, 0, 2, 2},
	})
	membrane := testutil.Labels(t, [][]int{
		{5, 5, 5, 5, 5},
		{5, 5, 5, 5, 5},
	})
	m := newMatcher(t, nucleus, membrane)

	c1 := m.Resolve(region(t, nucleus, 1))
	assert.Equal(t, Contested, c1.Status)
	assert.Equal(t, uint32(5), c1.MembraneID)
	assert.Equal(t, []uint32{2}, c1.Rivals)

	c2 := m.Resolve(region(t, nucleus, 2))
	assert.Equal(t, Contested, c2.Status)
	assert.Equal(t, []uint32{1}, c2.Rivals)
	assert.True(t, c2.Status.Orphan())
}

func TestResolve_NeighbourWithOtherMajorityDoesNotContest(t *testing.T) {
	// Nucleus 2 touches membrane 5 with one pixel but mostly sits in 6.
	nucleus := testutil.Labels(t, [][]int{
		{1, 1, 2, 2, 2},
	})
	membrane := testutil.Labels(t, [][]int{
		{5, 5, 5, 6, 6},
	})
	m := newMatcher(t, nucleus, membrane)

	corr := m.Resolve(region(t, nucleus, 1))
	assert.Equal(t, Matched, corr.Status)
	assert.Equal(t, uint32(5), corr.MembraneID)

	corr2 := m.Resolve(region(t, nucleus, 2))
	assert.Equal(t, Matched, corr2.Status)
	assert.Equal(t, uint32(6), corr2.MembraneID)
}

func TestResolve_NoOverlapSkipsContestCheck(t *testing.T) {
	nucleus := testutil.Labels(t, [][]int{
		{1, 1, 0, 0},
		{1, 1, 0, 0},
	})
	membrane := testutil.Labels(t, [][]int{
		{0, 0, 0, 9},
		{0, 0, 0, 9},
	})
	m := newMatcher(t, nucleus, membrane)

	corr := m.Resolve(region(t, nucleus, 1))
	assert.Equal(t, NoOverlap, corr.Status)
	assert.Zero(t, corr.MembraneID)
	assert.Equal(t, int64(0), m.ContestChecks())
}

func TestResolve_FaultedGeometry(t *testing.T) {
	defer monitoring.Mute()()

	nucleus := testutil.Labels(t, [][]int{{1, 1}})
	membrane := testutil.Labels(t, [][]int{{3, 3}})
	m := newMatcher(t, nucleus, membrane)

	corr := m.Resolve(labels.Region{ID: 1, Box: labels.BBox{RowMin: 0, ColMin: 0, RowMax: 9, ColMax: 9}})
	assert.Equal(t, Faulted, corr.Status)
	assert.ErrorIs(t, corr.Err, labels.ErrBounds)
	assert.True(t, corr.Status.Orphan())
}

func TestNewMatcher_ShapeMismatch(t *testing.T) {
	a, b := labels.New(2, 2), labels.New(2, 3)
	_, err := NewMatcher(a, b, labels.NewIndex(a), labels.NewIndex(b))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "contested", Contested.String())
	assert.Equal(t, "no_overlap", NoOverlap.String())
	assert.Equal(t, "faulted", Faulted.String())
	assert.Equal(t, "status(0)", Status(0).String())
}

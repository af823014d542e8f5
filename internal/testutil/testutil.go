// Package testutil provides shared test utilities and fixtures.
//
// This package centralises label-array builders and assertions so the
// labels, overlap, growth and reconcile tests describe masks the same way.
package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/colm-brandon-ul/cellmaps/internal/labels"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Labels builds a label array from nested rows, failing the test on
// invalid input.
func Labels(t testing.TB, rows [][]int) labels.Array {
	t.Helper()
	a, err := labels.FromRows(rows)
	if err != nil {
		t.Fatalf("invalid label fixture: %v", err)
	}
	return a
}

// FillRect sets every pixel of box in a to id.
func FillRect(a labels.Array, box labels.BBox, id uint32) {
	for r := box.RowMin; r < box.RowMax; r++ {
		for c := box.ColMin; c < box.ColMax; c++ {
			a.Set(r, c, id)
		}
	}
}

// AssertLabels compares got against the expected rows and reports a
// row/column diff on mismatch.
func AssertLabels(t testing.TB, want [][]int, got labels.Array) {
	t.Helper()
	if diff := cmp.Diff(want, got.Ints()); diff != "" {
		t.Errorf("label array mismatch (-want +got):\n%s", diff)
	}
}

// Support returns the set of (row, col) positions holding a nonzero id.
func Support(a labels.Array) map[[2]int]bool {
	s := make(map[[2]int]bool)
	for r := 0; r < a.Rows; r++ {
		for c, v := range a.Row(r) {
			if v != 0 {
				s[[2]int{r, c}] = true
			}
		}
	}
	return s
}

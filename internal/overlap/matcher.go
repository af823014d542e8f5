// Package overlap decides which membrane instance, if any, belongs to each
// nucleus instance.
//
// A nucleus is matched to the membrane it overlaps most, unless another
// nucleus claims that same membrane as its own majority overlap. Contested,
// overlap-free and faulted nuclei all end up as orphans.
package overlap

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/colm-brandon-ul/cellmaps/internal/labels"
	"github.com/colm-brandon-ul/cellmaps/internal/monitoring"
)

// ErrShapeMismatch is returned by NewMatcher when the two arrays differ in size.
var ErrShapeMismatch = errors.New("overlap: nucleus and membrane shapes differ")

// Status is the terminal classification of a nucleus region.
type Status int

const (
	// Matched means the nucleus and its majority membrane are mutual maxima.
	Matched Status = iota + 1
	// Contested means another nucleus also claims the majority membrane.
	Contested
	// NoOverlap means no membrane pixel lies under the nucleus.
	NoOverlap
	// Faulted means classification failed on malformed geometry.
	Faulted
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Contested:
		return "contested"
	case NoOverlap:
		return "no_overlap"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Orphan reports whether the nucleus lacks a trusted membrane counterpart.
func (s Status) Orphan() bool { return s != Matched }

// Correspondence is the outcome of resolving one nucleus region.
type Correspondence struct {
	NucleusID  uint32
	MembraneID uint32   // majority-overlap membrane; 0 when none was found
	Status     Status
	Rivals     []uint32 // other nuclei whose majority membrane is MembraneID
	Err        error    // set when Status is Faulted
}

// Matcher resolves nucleus regions against a membrane array. It only reads
// its inputs and is safe for concurrent use.
type Matcher struct {
	nucleus  labels.Array
	membrane labels.Array
	nucIdx   *labels.Index
	memIdx   *labels.Index

	contestChecks atomic.Int64
}

// NewMatcher returns a Matcher over the given arrays and their indexes.
func NewMatcher(nucleus, membrane labels.Array, nucIdx, memIdx *labels.Index) (*Matcher, error) {
	if !nucleus.SameShape(membrane) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			nucleus.Rows, nucleus.Cols, membrane.Rows, membrane.Cols)
	}
	return &Matcher{
		nucleus:  nucleus,
		membrane: membrane,
		nucIdx:   nucIdx,
		memIdx:   memIdx,
	}, nil
}

// ContestChecks returns how many bidirectional contest checks have run.
func (m *Matcher) ContestChecks() int64 { return m.contestChecks.Load() }

// Resolve classifies one nucleus region.
func (m *Matcher) Resolve(reg labels.Region) Correspondence {
	corr := Correspondence{NucleusID: reg.ID}

	cm, ok, err := MajorityOverlap(reg, m.nucleus, m.membrane)
	if err != nil {
		return m.fault(corr, err)
	}
	if !ok {
		corr.Status = NoOverlap
		return corr
	}
	corr.MembraneID = cm

	memReg, err := m.memIdx.Get(cm)
	if err != nil {
		return m.fault(corr, err)
	}

	m.contestChecks.Add(1)
	claimants, err := claimantsOf(memReg, m.membrane, m.nucleus, reg.ID)
	if err != nil {
		return m.fault(corr, err)
	}
	for _, other := range claimants {
		otherReg, err := m.nucIdx.Get(other)
		if err != nil {
			return m.fault(corr, err)
		}
		otherCM, ok, err := MajorityOverlap(otherReg, m.nucleus, m.membrane)
		if err != nil {
			return m.fault(corr, err)
		}
		if ok && otherCM == cm {
			corr.Rivals = append(corr.Rivals, other)
		}
	}

	if len(corr.Rivals) > 0 {
		corr.Status = Contested
	} else {
		corr.Status = Matched
	}
	return corr
}

func (m *Matcher) fault(corr Correspondence, err error) Correspondence {
	monitoring.Warnf("overlap: nucleus %d demoted to orphan: %v", corr.NucleusID, err)
	corr.Status = Faulted
	corr.Err = err
	return corr
}

// MajorityOverlap returns the nonzero id of other that covers the most
// pixels of region reg in source. Ties go to the smallest id. ok is false
// when no nonzero pixel of other lies under the region.
func MajorityOverlap(reg labels.Region, source, other labels.Array) (id uint32, ok bool, err error) {
	counts, err := overlapCounts(reg, source, other)
	if err != nil {
		return 0, false, err
	}
	best := 0
	for cand, n := range counts {
		if n > best || (n == best && cand < id) {
			id, best = cand, n
		}
	}
	return id, best > 0, nil
}

// overlapCounts histograms the nonzero values of other under the footprint
// of reg in source, restricted to reg's bounding box.
func overlapCounts(reg labels.Region, source, other labels.Array) (map[uint32]int, error) {
	if !source.SameShape(other) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			source.Rows, source.Cols, other.Rows, other.Cols)
	}
	if reg.Box.Empty() {
		return nil, fmt.Errorf("%w: empty box %v for id %d", labels.ErrBounds, reg.Box, reg.ID)
	}
	src, err := source.View(reg.Box)
	if err != nil {
		return nil, err
	}
	oth, err := other.View(reg.Box)
	if err != nil {
		return nil, err
	}

	counts := make(map[uint32]int)
	for r := 0; r < src.Rows; r++ {
		srow, orow := src.Row(r), oth.Row(r)
		for c, v := range srow {
			if v == reg.ID && orow[c] != 0 {
				counts[orow[c]]++
			}
		}
	}
	return counts, nil
}

// claimantsOf lists, in ascending order, the nucleus ids other than self
// that overlap the footprint of membrane region memReg.
func claimantsOf(memReg labels.Region, membrane, nucleus labels.Array, self uint32) ([]uint32, error) {
	counts, err := overlapCounts(memReg, membrane, nucleus)
	if err != nil {
		return nil, err
	}
	delete(counts, self)
	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

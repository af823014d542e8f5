// Package reconcile merges a nucleus instance mask and a membrane instance
// mask into one membrane mask whose ids follow the nucleus ids.
//
// Nuclei that own a membrane outright have that membrane relabelled to their
// own id. All other nuclei are grown outward by the mean radial expansion
// observed across the matched pairs and fill whatever space the corrected
// membranes leave free.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/colm-brandon-ul/cellmaps/internal/config"
	"github.com/colm-brandon-ul/cellmaps/internal/growth"
	"github.com/colm-brandon-ul/cellmaps/internal/labels"
	"github.com/colm-brandon-ul/cellmaps/internal/monitoring"
	"github.com/colm-brandon-ul/cellmaps/internal/overlap"
)

// ErrShapeMismatch is returned when the nucleus and membrane arrays differ in size.
var ErrShapeMismatch = errors.New("reconcile: nucleus and membrane shapes differ")

// Expansion records the axis growth of one matched nucleus/membrane pair.
type Expansion struct {
	NucleusID  uint32
	MembraneID uint32
	Before     labels.Axes // nucleus region
	After      labels.Axes // corrected region
	Value      float64     // mean of the major and minor axis deltas
}

// Result is the output of one reconciliation.
type Result struct {
	Final     labels.Array
	Corrected labels.Array
	Seed      labels.Array

	Distance        float64
	Expansions      []Expansion
	Correspondences []overlap.Correspondence // ascending nucleus id, skipped regions excluded

	Matched   int
	Contested int
	NoOverlap int
	Faulted   int
	Skipped   int

	ContestChecks int64
	Elapsed       time.Duration
}

// Orphans returns the number of nuclei that were seeded for growth.
func (r *Result) Orphans() int { return r.Contested + r.NoOverlap + r.Faulted }

// Engine runs reconciliations with a fixed configuration. It holds no state
// between calls and is safe for concurrent use.
type Engine struct {
	cfg *config.ReconcileConfig
}

// New returns an Engine. A nil cfg uses the defaults.
func New(cfg *config.ReconcileConfig) *Engine {
	if cfg == nil {
		cfg = config.DefaultReconcileConfig()
	}
	return &Engine{cfg: cfg}
}

// slot is the per-nucleus outcome of classification. Each worker writes only
// its own slots.
type slot struct {
	reg     labels.Region
	skipped bool
	corr    overlap.Correspondence
	memReg  labels.Region
	exp     Expansion
}

// Reconcile classifies every nucleus region against membrane, rewrites the
// matched membranes with their nucleus ids and grows the remaining nuclei
// into the space left over.
func (e *Engine) Reconcile(ctx context.Context, nucleus, membrane labels.Array) (*Result, error) {
	start := time.Now()
	if !nucleus.SameShape(membrane) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			nucleus.Rows, nucleus.Cols, membrane.Rows, membrane.Cols)
	}

	nucIdx := labels.NewIndex(nucleus)
	memIdx := labels.NewIndex(membrane)
	matcher, err := overlap.NewMatcher(nucleus, membrane, nucIdx, memIdx)
	if err != nil {
		return nil, err
	}

	slots, err := e.classify(ctx, matcher, nucleus, membrane, nucIdx, memIdx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Corrected: labels.New(nucleus.Rows, nucleus.Cols),
		Seed:      labels.New(nucleus.Rows, nucleus.Cols),
	}
	if err := apply(res, slots, nucleus, membrane); err != nil {
		return nil, err
	}

	res.ContestChecks = matcher.ContestChecks()
	res.Distance = e.growthDistance(res.Expansions)

	grower := growth.Grower{Workers: e.cfg.GetWorkers()}
	expanded, err := grower.Grow(ctx, res.Seed, res.Distance)
	if err != nil {
		return nil, fmt.Errorf("grow orphan seeds: %w", err)
	}
	res.Final = merge(res.Corrected, expanded)
	res.Elapsed = time.Since(start)

	monitoring.Logf("reconcile: %d nuclei, %d matched, %d orphaned, %d skipped, distance %.2f px in %v",
		nucIdx.Len(), res.Matched, res.Orphans(), res.Skipped, res.Distance, res.Elapsed)
	return res, nil
}

// classify resolves every nucleus region across the configured workers.
// Regions are split into contiguous chunks of the ascending id list, so
// slots come back in ascending nucleus id order.
func (e *Engine) classify(ctx context.Context, m *overlap.Matcher, nucleus, membrane labels.Array,
	nucIdx, memIdx *labels.Index) ([]slot, error) {

	ids := nucIdx.IDs()
	slots := make([]slot, len(ids))
	if len(ids) == 0 {
		return slots, ctx.Err()
	}

	minArea := e.cfg.GetMinRegionArea()
	workers := max(min(e.cfg.GetWorkers(), len(ids)), 1)
	chunk := (len(ids) + workers - 1) / workers

	eg, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(ids); lo += chunk {
		hi := min(lo+chunk, len(ids))
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				reg, err := nucIdx.Get(ids[i])
				if err != nil {
					return err
				}
				s := &slots[i]
				s.reg = reg
				if reg.Area < minArea {
					s.skipped = true
					continue
				}
				s.corr = m.Resolve(reg)
				if s.corr.Status == overlap.Matched {
					measure(s, nucleus, membrane, memIdx)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

// measure computes the axis lengths of a matched pair. The corrected region
// covers exactly the membrane footprint, so its axes are the membrane's.
// A pair whose moments cannot be computed is demoted to an orphan.
func measure(s *slot, nucleus, membrane labels.Array, memIdx *labels.Index) {
	memReg, err := memIdx.Get(s.corr.MembraneID)
	if err == nil {
		s.memReg = memReg
		s.exp.Before, err = labels.AxisLengths(nucleus, s.reg)
	}
	if err == nil {
		s.exp.After, err = labels.AxisLengths(membrane, memReg)
	}
	if err != nil {
		monitoring.Warnf("reconcile: nucleus %d / membrane %d demoted to orphan: %v",
			s.corr.NucleusID, s.corr.MembraneID, err)
		s.corr.Status = overlap.Faulted
		s.corr.Err = err
		return
	}
	s.exp.NucleusID = s.corr.NucleusID
	s.exp.MembraneID = s.corr.MembraneID
	s.exp.Value = ((s.exp.After.Major - s.exp.Before.Major) + (s.exp.After.Minor - s.exp.Before.Minor)) / 2
}

// apply writes the classification into the corrected and seed arrays. It is
// the only writer and walks slots in ascending nucleus id order.
func apply(res *Result, slots []slot, nucleus, membrane labels.Array) error {
	for i := range slots {
		s := &slots[i]
		if s.skipped {
			res.Skipped++
			continue
		}
		res.Correspondences = append(res.Correspondences, s.corr)

		switch s.corr.Status {
		case overlap.Matched:
			res.Matched++
			res.Expansions = append(res.Expansions, s.exp)
			if err := paint(res.Corrected, membrane, s.memReg, s.reg.ID); err != nil {
				return fmt.Errorf("write corrected membrane %d: %w", s.memReg.ID, err)
			}
			continue
		case overlap.Contested:
			res.Contested++
		case overlap.NoOverlap:
			res.NoOverlap++
		default:
			res.Faulted++
		}
		if err := seed(res.Seed, nucleus, s.reg); err != nil {
			return fmt.Errorf("seed nucleus %d: %w", s.reg.ID, err)
		}
	}
	return nil
}

// paint sets dst to id wherever src holds the id of region reg.
func paint(dst, src labels.Array, reg labels.Region, id uint32) error {
	d, err := dst.View(reg.Box)
	if err != nil {
		return err
	}
	s, err := src.View(reg.Box)
	if err != nil {
		return err
	}
	for r := 0; r < d.Rows; r++ {
		drow, srow := d.Row(r), s.Row(r)
		for c, v := range srow {
			if v == reg.ID {
				drow[c] = id
			}
		}
	}
	return nil
}

// seed adds the footprint of nucleus region reg into dst.
func seed(dst, nucleus labels.Array, reg labels.Region) error {
	d, err := dst.View(reg.Box)
	if err != nil {
		return err
	}
	n, err := nucleus.View(reg.Box)
	if err != nil {
		return err
	}
	for r := 0; r < d.Rows; r++ {
		drow, nrow := d.Row(r), n.Row(r)
		for c, v := range nrow {
			if v == reg.ID {
				drow[c] += v
			}
		}
	}
	return nil
}

// growthDistance turns the matched-pair expansions into the radius used to
// grow orphan seeds.
func (e *Engine) growthDistance(exps []Expansion) float64 {
	if d, ok := e.cfg.GetGrowthDistance(); ok {
		return d
	}
	if len(exps) == 0 {
		return 0
	}
	vals := make([]float64, len(exps))
	for i, x := range exps {
		vals[i] = x.Value
	}
	d := stat.Mean(vals, nil)
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	if e.cfg.GetTruncateDistance() {
		d = math.Trunc(d)
	}
	return d
}

// merge returns corrected with its background filled from expanded.
func merge(corrected, expanded labels.Array) labels.Array {
	out := corrected.Clone()
	for r := 0; r < out.Rows; r++ {
		orow, erow := out.Row(r), expanded.Row(r)
		for c, v := range orow {
			if v == 0 {
				orow[c] = erow[c]
			}
		}
	}
	return out
}

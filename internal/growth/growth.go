// Package growth implements distance-limited nearest-label expansion.
//
// Every background pixel within a Euclidean distance d of a labelled pixel
// takes the label of its nearest labelled pixel. Distances come from an
// exact separable Euclidean distance transform that also tracks the
// coordinates of the nearest feature, so no per-label dilation is needed.
//
// When two labelled pixels are exactly equidistant the one returned by the
// lower-envelope sweep wins; callers must not rely on which.
package growth

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/colm-brandon-ul/cellmaps/internal/labels"
)

// Field is the result of a distance transform: for every pixel the squared
// distance to the nearest nonzero pixel and that pixel's flat index.
// Pixels with no nonzero pixel anywhere in the array hold -1 in both.
type Field struct {
	Rows, Cols int
	Dist2      []int64
	Nearest    []int
}

// At returns the squared distance and nearest feature coordinates for (r, c).
// ok is false when the array has no nonzero pixels.
func (f *Field) At(r, c int) (dist2 int64, nr, nc int, ok bool) {
	i := r*f.Cols + c
	if f.Nearest[i] < 0 {
		return -1, -1, -1, false
	}
	n := f.Nearest[i]
	return f.Dist2[i], n / f.Cols, n % f.Cols, true
}

// Grower runs distance transforms across a fixed number of goroutines.
// The zero value uses GOMAXPROCS workers.
type Grower struct {
	Workers int
}

// Grow expands the labels of a by distance using a default Grower.
func Grow(ctx context.Context, a labels.Array, distance float64) (labels.Array, error) {
	return Grower{}.Grow(ctx, a, distance)
}

// Transform computes the distance field of a using a default Grower.
func Transform(ctx context.Context, a labels.Array) (*Field, error) {
	return Grower{}.Transform(ctx, a)
}

// Grow returns a new array in which each background pixel of a whose
// nearest labelled pixel is at distance <= distance takes that pixel's
// label. A distance of zero, a negative distance or NaN returns a copy of a.
func (g Grower) Grow(ctx context.Context, a labels.Array, distance float64) (labels.Array, error) {
	if !(distance > 0) {
		return a.Clone(), nil
	}
	limit := distance * distance

	out := labels.New(a.Rows, a.Cols)
	err := g.sweep(ctx, a, func(r int, d2 []int64, near []int) {
		dst := out.Row(r)
		for c := range dst {
			n := near[c]
			if n < 0 || float64(d2[c]) > limit {
				continue
			}
			dst[c] = a.At(n/a.Cols, n%a.Cols)
		}
	})
	if err != nil {
		return labels.Array{}, err
	}
	return out, nil
}

// Transform computes the full distance field of a.
func (g Grower) Transform(ctx context.Context, a labels.Array) (*Field, error) {
	f := &Field{
		Rows:    a.Rows,
		Cols:    a.Cols,
		Dist2:   make([]int64, a.Rows*a.Cols),
		Nearest: make([]int, a.Rows*a.Cols),
	}
	err := g.sweep(ctx, a, func(r int, d2 []int64, near []int) {
		copy(f.Dist2[r*a.Cols:], d2)
		copy(f.Nearest[r*a.Cols:], near)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (g Grower) workers() int {
	if g.Workers > 0 {
		return g.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// sweep runs the two-pass transform and hands each finished row to emit.
// emit may be called concurrently for different rows; the slices it
// receives are reused after it returns.
func (g Grower) sweep(ctx context.Context, a labels.Array, emit func(r int, d2 []int64, near []int)) error {
	rows, cols := a.Rows, a.Cols
	if rows == 0 || cols == 0 {
		return nil
	}

	// Pass 1: per column, the nearest nonzero row (-1 if none).
	featRow := make([]int32, rows*cols)
	if err := g.parallel(ctx, cols, func(c int) {
		columnPass(a, c, featRow)
	}); err != nil {
		return err
	}

	// Pass 2: per row, lower envelope of parabolas over the column results.
	return g.parallelBuffered(ctx, rows, cols, func(r int, s *rowScratch) {
		rowPass(r, cols, featRow, s)
		emit(r, s.d2, s.near)
	})
}

func columnPass(a labels.Array, c int, featRow []int32) {
	rows, cols := a.Rows, a.Cols
	last := int32(-1)
	for r := 0; r < rows; r++ {
		if a.At(r, c) != 0 {
			last = int32(r)
		}
		featRow[r*cols+c] = last
	}
	next := int32(-1)
	for r := rows - 1; r >= 0; r-- {
		if a.At(r, c) != 0 {
			next = int32(r)
		}
		if next < 0 {
			continue
		}
		i := r*cols + c
		up := featRow[i]
		if up < 0 || next-int32(r) < int32(r)-up {
			featRow[i] = next
		}
	}
}

type rowScratch struct {
	d2    []int64
	near  []int
	sites []int
	f     []int64
	z     []float64
}

func newRowScratch(cols int) *rowScratch {
	return &rowScratch{
		d2:    make([]int64, cols),
		near:  make([]int, cols),
		sites: make([]int, 0, cols),
		f:     make([]int64, 0, cols),
		z:     make([]float64, 0, cols+1),
	}
}

func rowPass(r, cols int, featRow []int32, s *rowScratch) {
	s.sites, s.f, s.z = s.sites[:0], s.f[:0], s.z[:0]
	base := r * cols

	for q := 0; q < cols; q++ {
		fr := featRow[base+q]
		if fr < 0 {
			continue
		}
		dy := int64(fr) - int64(r)
		fq := dy * dy
		for len(s.sites) > 0 {
			k := len(s.sites) - 1
			p := s.sites[k]
			x := intersect(p, s.f[k], q, fq)
			if x > s.z[k] {
				s.sites = append(s.sites, q)
				s.f = append(s.f, fq)
				s.z = append(s.z, x)
				break
			}
			s.sites, s.f, s.z = s.sites[:k], s.f[:k], s.z[:k]
		}
		if len(s.sites) == 0 {
			s.sites = append(s.sites, q)
			s.f = append(s.f, fq)
			s.z = append(s.z, math.Inf(-1))
		}
	}

	if len(s.sites) == 0 {
		for c := 0; c < cols; c++ {
			s.d2[c] = -1
			s.near[c] = -1
		}
		return
	}

	k := 0
	for c := 0; c < cols; c++ {
		for k+1 < len(s.sites) && s.z[k+1] < float64(c) {
			k++
		}
		q := s.sites[k]
		dx := int64(c - q)
		s.d2[c] = dx*dx + s.f[k]
		s.near[c] = int(featRow[base+q])*cols + q
	}
}

// intersect returns the column where the parabolas rooted at p and q
// (heights fp and fq, p < q) cross.
func intersect(p int, fp int64, q int, fq int64) float64 {
	pp, qq := int64(p), int64(q)
	return float64((fq+qq*qq)-(fp+pp*pp)) / float64(2*(qq-pp))
}

// parallel calls fn(i) for i in [0, n) across the grower's workers.
func (g Grower) parallel(ctx context.Context, n int, fn func(i int)) error {
	return g.parallelBuffered(ctx, n, 0, func(i int, _ *rowScratch) { fn(i) })
}

// parallelBuffered splits [0, n) into contiguous chunks, one per worker,
// giving each worker its own scratch buffers sized for cols columns.
func (g Grower) parallelBuffered(ctx context.Context, n, cols int, fn func(i int, s *rowScratch)) error {
	workers := min(g.workers(), n)
	chunk := (n + workers - 1) / workers

	eg, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		eg.Go(func() error {
			var s *rowScratch
			if cols > 0 {
				s = newRowScratch(cols)
			}
			for i := start; i < end; i++ {
				if i%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(i, s)
			}
			return nil
		})
	}
	return eg.Wait()
}

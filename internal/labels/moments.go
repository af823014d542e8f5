package labels

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyRegion is returned when a region has no pixels inside its box.
	ErrEmptyRegion = errors.New("labels: region has no pixels")
	// ErrNonFinite is returned when moment arithmetic yields NaN or Inf.
	ErrNonFinite = errors.New("labels: non-finite moment")
)

// Axes holds the lengths of the major and minor axes of the ellipse with
// the same normalised second central moments as a region.
type Axes struct {
	Major float64
	Minor float64
}

// AxisLengths computes the major and minor axis lengths of region reg in a.
// Lengths are 4·sqrt(λ) of the eigenvalues of the pixel-coordinate
// covariance, so a single pixel has zero-length axes.
func AxisLengths(a Array, reg Region) (Axes, error) {
	view, err := a.View(reg.Box)
	if err != nil {
		return Axes{}, err
	}

	// Step 1: centroid, relative to the box origin to keep sums small.
	var n, sumR, sumC float64
	for r := 0; r < view.Rows; r++ {
		for c, id := range view.Row(r) {
			if id == reg.ID {
				n++
				sumR += float64(r)
				sumC += float64(c)
			}
		}
	}
	if n == 0 {
		return Axes{}, fmt.Errorf("%w: id %d in %v", ErrEmptyRegion, reg.ID, reg.Box)
	}
	meanR, meanC := sumR/n, sumC/n

	// Step 2: covariance
	//   [crr crc]
	//   [crc ccc]
	var crr, crc, ccc float64
	for r := 0; r < view.Rows; r++ {
		dr := float64(r) - meanR
		for c, id := range view.Row(r) {
			if id != reg.ID {
				continue
			}
			dc := float64(c) - meanC
			crr += dr * dr
			crc += dr * dc
			ccc += dc * dc
		}
	}
	crr /= n
	crc /= n
	ccc /= n

	// Step 3: closed-form eigenvalues of a symmetric 2x2 matrix.
	trace := crr + ccc
	det := crr*ccc - crc*crc
	disc := trace*trace - 4*det
	if disc < 0 {
		// Rounding on near-isotropic regions.
		disc = 0
	}
	sq := math.Sqrt(disc)
	l1 := math.Max((trace+sq)/2, 0)
	l2 := math.Max((trace-sq)/2, 0)

	ax := Axes{Major: 4 * math.Sqrt(l1), Minor: 4 * math.Sqrt(l2)}
	if math.IsNaN(ax.Major) || math.IsInf(ax.Major, 0) || math.IsNaN(ax.Minor) || math.IsInf(ax.Minor, 0) {
		return Axes{}, fmt.Errorf("%w: id %d", ErrNonFinite, reg.ID)
	}
	return ax, nil
}

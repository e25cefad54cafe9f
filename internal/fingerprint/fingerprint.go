// Package fingerprint computes fixed-width perceptual fingerprints of images
// using a difference hash: the image is reduced to a small luminance grid and
// each bit records whether a cell is brighter than its right neighbour.
// Fingerprints of the same grid size are comparable by Hamming distance.
package fingerprint

import (
	"fmt"
	"image"
	"image/color"
	"math/bits"

	"github.com/nfnt/resize"
)

// DefaultGridSize is the default edge length S of the comparison grid,
// yielding S*S = 256 fingerprint bits.
const DefaultGridSize = 16

// Fingerprint is a packed bit sequence of GridSize*GridSize bits, row-major,
// most significant bit first. It is a value; callers must not mutate it.
type Fingerprint []uint64

// Engine converts images into fingerprints. All fingerprints produced by one
// engine share the same grid size and are directly comparable.
type Engine struct {
	grid int
}

// NewEngine returns an engine with the given grid size S. Every image is
// resampled to an (S+1)xS luminance grid before hashing, so fingerprints are
// independent of source resolution and aspect ratio.
func NewEngine(gridSize int) (*Engine, error) {
	if gridSize < 2 {
		return nil, fmt.Errorf("grid size must be at least 2, got %d", gridSize)
	}
	return &Engine{grid: gridSize}, nil
}

// Default returns an engine with DefaultGridSize.
func Default() *Engine {
	return &Engine{grid: DefaultGridSize}
}

// GridSize returns the grid edge length S.
func (e *Engine) GridSize() int { return e.grid }

// BitLen returns the number of bits in fingerprints produced by this engine.
func (e *Engine) BitLen() int { return e.grid * e.grid }

// Fingerprint hashes the image. It is a pure function of the pixel data: two
// images that are identical after grayscale conversion and resampling produce
// bit-identical fingerprints.
func (e *Engine) Fingerprint(img image.Image) Fingerprint {
	scaled := resize.Resize(uint(e.grid+1), uint(e.grid), img, resize.Lanczos3)

	// Luminance grid, row-major, (grid+1) columns per row.
	lum := make([]uint32, (e.grid+1)*e.grid)
	bounds := scaled.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g, _, _, _ := color.GrayModel.Convert(scaled.At(x, y)).RGBA()
			lum[i] = g
			i++
		}
	}

	fp := make(Fingerprint, (e.BitLen()+63)/64)
	bit := 0
	for row := 0; row < e.grid; row++ {
		for col := 0; col < e.grid; col++ {
			idx := row*(e.grid+1) + col
			if lum[idx] > lum[idx+1] {
				fp[bit/64] |= 1 << (63 - uint(bit%64))
			}
			bit++
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints of the same
// grid size.
func Distance(a, b Fingerprint) int {
	dist := 0
	for i := range a {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}

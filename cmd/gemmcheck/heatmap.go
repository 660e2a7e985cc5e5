package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/gemm"
)

// panelGap is the number of element-sized columns between panels.
const panelGap = 1

// heatmap renders want, got and |got-want| side by side at one pixel per
// element. Values use a blue-white-red ramp over the reference range; the
// difference panel is black for exact matches and brightens with the error.
func heatmap(want, got *gemm.Matrix) *image.RGBA {
	rows, cols := want.Rows, want.Cols
	img := image.NewRGBA(image.Rect(0, 0, 3*cols+2*panelGap, rows))

	var vmax, dmax float64
	for i, v := range want.Data {
		vmax = math.Max(vmax, math.Abs(float64(v)))
		dmax = math.Max(dmax, math.Abs(float64(got.Data[i]-v)))
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			img.SetRGBA(j, i, diverging(float64(want.At(i, j)), vmax))
			img.SetRGBA(cols+panelGap+j, i, diverging(float64(got.At(i, j)), vmax))
			d := math.Abs(float64(got.At(i, j) - want.At(i, j)))
			img.SetRGBA(2*(cols+panelGap)+j, i, intensity(d, dmax))
		}
	}
	return img
}

func diverging(v, vmax float64) color.RGBA {
	if vmax == 0 {
		return color.RGBA{255, 255, 255, 255}
	}
	t := math.Max(-1, math.Min(1, v/vmax))
	fade := uint8(255 * (1 - math.Abs(t)))
	if t < 0 {
		return color.RGBA{fade, fade, 255, 255}
	}
	return color.RGBA{255, fade, fade, 255}
}

func intensity(d, dmax float64) color.RGBA {
	if dmax == 0 {
		return color.RGBA{0, 0, 0, 255}
	}
	g := uint8(255 * math.Min(1, d/dmax))
	return color.RGBA{g, g, 0, 255}
}

// writeHeatmap scales the heatmap by scale with nearest-neighbour sampling
// and writes it as PNG.
func writeHeatmap(path string, want, got *gemm.Matrix, scale int) error {
	src := heatmap(want, got)
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	if err := png.Encode(f, dst); err != nil {
		_ = f.Close()
		return fmt.Errorf("heatmap: encode: %w", err)
	}
	return f.Close()
}

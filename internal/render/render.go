package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/i474232898/ndvi-change/internal/ndvi"
)

var errEmptyPalette = errors.New("palette has no colours")

// Colorize maps each valid pixel onto the palette ramp after clamping to
// [Min, Max]. Missing pixels are fully transparent.
func Colorize(r *ndvi.Raster, p VisParams) (*image.NRGBA, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(p.Palette) == 0 {
		return nil, errEmptyPalette
	}

	stops := make([]color.NRGBA, len(p.Palette))
	for i, c := range p.Palette {
		stops[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	for y := 0; y < r.Height(); y++ {
		for x := 0; x < r.Width(); x++ {
			v, ok := r.At(x, y)
			if !ok {
				continue
			}
			img.SetNRGBA(x, y, ramp(stops, normalize(v, p.Min, p.Max)))
		}
	}
	return img, nil
}

// ComposeRGB stretches three reflectance bands to 8-bit channels using
// ((v-Min)/(Max-Min))^(1/Gamma). A pixel missing in any band is transparent.
func ComposeRGB(red, green, blue *ndvi.Raster, p VisParams) (*image.NRGBA, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if !red.SameShape(green) || !red.SameShape(blue) {
		return nil, fmt.Errorf("%w: rgb bands differ in size", ndvi.ErrDimensionMismatch)
	}

	gamma := p.Gamma
	if gamma == 0 {
		gamma = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, red.Width(), red.Height()))
	for y := 0; y < red.Height(); y++ {
		for x := 0; x < red.Width(); x++ {
			rv, rok := red.At(x, y)
			gv, gok := green.At(x, y)
			bv, bok := blue.At(x, y)
			if !rok || !gok || !bok {
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{
				R: stretch(rv, p.Min, p.Max, gamma),
				G: stretch(gv, p.Min, p.Max, gamma),
				B: stretch(bv, p.Min, p.Max, gamma),
				A: 255,
			})
		}
	}
	return img, nil
}

// Thumbnail scales img so that its longest side equals dim. Nearest
// neighbour keeps palette colours exact.
func Thumbnail(img image.Image, dim int) image.Image {
	b := img.Bounds()
	if dim <= 0 || b.Dx() == 0 || b.Dy() == 0 {
		return img
	}
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if longest == dim {
		return img
	}

	scale := float64(dim) / float64(longest)
	w := int(math.Max(1, math.Round(float64(b.Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(b.Dy())*scale)))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func normalize(v, lo, hi float64) float64 {
	t := (v - lo) / (hi - lo)
	return math.Max(0, math.Min(1, t))
}

func stretch(v, lo, hi, gamma float64) uint8 {
	t := math.Pow(normalize(v, lo, hi), 1/gamma)
	return uint8(math.Round(t * 255))
}

// ramp interpolates linearly between evenly spaced palette stops.
func ramp(stops []color.NRGBA, t float64) color.NRGBA {
	if len(stops) == 1 {
		return stops[0]
	}
	pos := t * float64(len(stops)-1)
	i := int(math.Floor(pos))
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	return color.NRGBA{
		R: lerp(a.R, b.R, f),
		G: lerp(a.G, b.G, f),
		B: lerp(a.B, b.B, f),
		A: lerp(a.A, b.A, f),
	}
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

// Package figure lays out the comparison panels and the statistics box into
// a single image file.
package figure

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/colornames"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	rows = 2
	cols = 3

	defaultWidth  = 15 * vg.Inch
	defaultHeight = 10 * vg.Inch
	defaultDPI    = 300
)

// statsBoxColor is wheat at 80% opacity. colornames values are
// premultiplied, so the alpha cannot simply be lowered on them.
var statsBoxColor = color.NRGBA{
	R: colornames.Wheat.R,
	G: colornames.Wheat.G,
	B: colornames.Wheat.B,
	A: 204,
}

// Panel is one titled image in the grid.
type Panel struct {
	Title string
	Image image.Image
}

// Figure is the full comparison layout. Row one holds the true colour
// composites and the change map, row two the NDVI maps and the statistics.
type Figure struct {
	Title string

	RGBA   Panel
	RGBB   Panel
	Change Panel
	NDVIA  Panel
	NDVIB  Panel

	// Stats is the multi-line text of the statistics box.
	Stats string

	Width  vg.Length
	Height vg.Length
	DPI    int
}

// Save renders the figure and writes it to path. The encoding follows the
// file extension (.png, .jpg/.jpeg, .tif/.tiff). Missing parent
// directories are created.
func (f *Figure) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	if err := f.WriteTo(out, filepath.Ext(path)); err != nil {
		return err
	}
	return out.Close()
}

// WriteTo renders the figure and encodes it in the format named by ext.
func (f *Figure) WriteTo(w io.Writer, ext string) error {
	canvas, err := f.render()
	if err != nil {
		return err
	}

	var wt io.WriterTo
	switch strings.ToLower(ext) {
	case ".png":
		wt = vgimg.PngCanvas{Canvas: canvas}
	case ".jpg", ".jpeg":
		wt = vgimg.JpegCanvas{Canvas: canvas}
	case ".tif", ".tiff":
		wt = vgimg.TiffCanvas{Canvas: canvas}
	default:
		return fmt.Errorf("unsupported output format: %s", ext)
	}

	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to save figure: %w", err)
	}
	return nil
}

func (f *Figure) render() (*vgimg.Canvas, error) {
	width, height, dpi := f.Width, f.Height, f.DPI
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	if dpi <= 0 {
		dpi = defaultDPI
	}

	grid := [rows][cols]Panel{
		{f.RGBA, f.RGBB, f.Change},
		{f.NDVIA, f.NDVIB, {}},
	}

	plots := make([][]*plot.Plot, rows)
	for j := range plots {
		plots[j] = make([]*plot.Plot, cols)
		for i := range plots[j] {
			if j == rows-1 && i == cols-1 {
				p, err := statsPlot(f.Stats)
				if err != nil {
					return nil, err
				}
				plots[j][i] = p
				continue
			}
			p, err := imagePlot(grid[j][i])
			if err != nil {
				return nil, fmt.Errorf("panel %q: %w", grid[j][i].Title, err)
			}
			plots[j][i] = p
		}
	}

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	dc := draw.New(img)

	// White background; vgimg starts transparent.
	dc.SetColor(color.White)
	dc.Fill(dc.Rectangle.Path())

	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      cols,
		PadX:      vg.Centimeter,
		PadY:      vg.Centimeter,
		PadTop:    2 * vg.Centimeter,
		PadBottom: vg.Centimeter / 2,
		PadLeft:   vg.Centimeter / 2,
		PadRight:  vg.Centimeter / 2,
	}

	canvases := plot.Align(plots, tiles, dc)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	if f.Title != "" {
		sty := text.Style{
			Color:   color.Black,
			Font:    font.From(plot.DefaultFont, vg.Points(16)),
			XAlign:  text.XCenter,
			YAlign:  text.YTop,
			Handler: plot.DefaultTextHandler,
		}
		pt := vg.Point{
			X: (dc.Min.X + dc.Max.X) / 2,
			Y: dc.Max.Y - vg.Centimeter/2,
		}
		dc.FillText(sty, pt, f.Title)
	}

	return img, nil
}

func imagePlot(panel Panel) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.HideAxes()

	if panel.Image == nil {
		return p, nil
	}
	b := panel.Image.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	p.Add(plotter.NewImage(panel.Image, 0, 0, float64(b.Dx()), float64(b.Dy())))
	return p, nil
}

func statsPlot(stats string) (*plot.Plot, error) {
	p := plot.New()
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	box, err := plotter.NewPolygon(plotter.XYs{
		{X: 0.05, Y: 0.05}, {X: 0.95, Y: 0.05}, {X: 0.95, Y: 0.95}, {X: 0.05, Y: 0.95},
	})
	if err != nil {
		return nil, err
	}
	box.Color = statsBoxColor
	box.LineStyle.Width = vg.Points(0.5)
	p.Add(box)

	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: 0.1, Y: 0.5}},
		Labels: []string{stats},
	})
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Font = font.From(plot.DefaultFont, vg.Points(11))
		labels.TextStyle[i].Font.Typeface = "Liberation"
		labels.TextStyle[i].Font.Variant = "Mono"
		labels.TextStyle[i].YAlign = text.YCenter
	}
	p.Add(labels)
	return p, nil
}

// Package render draws a frame plan as a PNG: one cell per LCU colored by
// region, region outlines, diagonal offsets and ROI weights.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"

	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/ratecontrol"
)

// ErrNoPartition indicates a plan without a partition.
var ErrNoPartition = errors.New("plan has no partition")

// DefaultScale is the cell edge in pixels.
const DefaultScale = 16

// Options controls what is drawn.
type Options struct {
	Scale   int  // pixels per LCU, 0 selects DefaultScale
	Labels  bool // diagonal offset of each region
	Weights bool // ROI weight overlay
}

// Palette holds the region fill colors; region i uses Palette[i%len(Palette)].
var Palette = []color.RGBA{
	{0x4e, 0x79, 0xa7, 0xff},
	{0xf2, 0x8e, 0x2b, 0xff},
	{0x59, 0xa1, 0x4f, 0xff},
	{0xb0, 0x7a, 0xa1, 0xff},
	{0x76, 0xb7, 0xb2, 0xff},
	{0xed, 0xc9, 0x48, 0xff},
	{0x9c, 0x75, 0x5f, 0xff},
	{0xba, 0xb0, 0xac, 0xff},
	{0x1f, 0x77, 0xb4, 0xff},
	{0xd6, 0x27, 0x28, 0xff},
	{0x94, 0x67, 0xbd, 0xff},
	{0x8c, 0x56, 0x4b, 0xff},
	{0xe3, 0x77, 0xc2, 0xff},
	{0x7f, 0x7f, 0x7f, 0xff},
	{0xbc, 0xbd, 0x22, 0xff},
	{0x17, 0xbe, 0xcf, 0xff},
}

// Image is a rendered plan.
type Image struct {
	dc    *gg.Context
	scale int
}

// Plan draws p.
func Plan(p *orchestrator.FramePlan, opt Options) (*Image, error) {
	if p == nil || p.Partition == nil {
		return nil, brcerrors.NewConfigError("cannot render plan", ErrNoPartition)
	}
	scale := opt.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	part := p.Partition
	s := float64(scale)
	dc := gg.NewContext(part.WidthLCU*scale, part.HeightLCU*scale)
	dc.SetColor(color.White)
	dc.Clear()

	for i, r := range part.Regions {
		dc.SetColor(Palette[i%len(Palette)])
		dc.DrawRectangle(float64(r.StartCol)*s, float64(r.StartRow)*s, float64(r.Width())*s, float64(r.Height())*s)
		dc.Fill()
	}

	if opt.Weights && p.Regions != nil {
		drawWeights(dc, p.Regions, s)
	}

	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	for _, r := range part.Regions {
		dc.DrawRectangle(float64(r.StartCol)*s+0.5, float64(r.StartRow)*s+0.5, float64(r.Width())*s-1, float64(r.Height())*s-1)
		dc.Stroke()
	}

	if opt.Labels {
		for _, r := range part.Regions {
			x := float64(r.StartCol)*s + 3
			y := float64(r.StartRow)*s + 3
			dc.DrawStringAnchored(fmt.Sprint(r.DiagonalOffset), x, y, 0, 1)
		}
	}
	return &Image{dc: dc, scale: scale}, nil
}

// drawWeights tints LCUs red in proportion to their ROI weight.
func drawWeights(dc *gg.Context, m *ratecontrol.RegionMap, s float64) {
	for row := range m.HeightLCU {
		for col := range m.WidthLCU {
			w, _ := m.At(col, row)
			if w == 0 {
				continue
			}
			alpha := 0.6 * float64(w) / float64(ratecontrol.WeightInside)
			dc.SetRGBA(1, 0, 0, alpha)
			dc.DrawRectangle(float64(col)*s, float64(row)*s, s, s)
			dc.Fill()
		}
	}
}

// Image returns the rendered pixels.
func (im *Image) Image() image.Image { return im.dc.Image() }

// Cell returns the color at the center of the LCU at (col, row).
func (im *Image) Cell(col, row int) color.Color {
	return im.dc.Image().At(col*im.scale+im.scale/2, row*im.scale+im.scale/2)
}

// EncodePNG writes the image as PNG.
func (im *Image) EncodePNG(w io.Writer) error {
	if err := im.dc.EncodePNG(w); err != nil {
		return brcerrors.NewIOError("encode PNG", err)
	}
	return nil
}

// SavePNG writes the image to path.
func (im *Image) SavePNG(path string) error {
	if err := im.dc.SavePNG(path); err != nil {
		return brcerrors.NewIOError("save PNG", err)
	}
	return nil
}

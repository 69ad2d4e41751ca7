package packager

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const coverDateLayout = "Monday 02 January 2006"

// DrawCover writes a PNG copy of the cover at basePath with text drawn
// centred near the bottom edge.
func DrawCover(basePath, outPath, text string) error {
	f, err := os.Open(basePath)
	if err != nil {
		return fmt.Errorf("open cover: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode cover: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	drawCaption(canvas, text)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create cover: %w", err)
	}
	if err := png.Encode(out, canvas); err != nil {
		out.Close()
		return fmt.Errorf("encode cover: %w", err)
	}
	return out.Close()
}

// drawCaption renders text with the fixed bitmap face and scales it up so it
// spans roughly two thirds of the cover width.
func drawCaption(canvas *image.RGBA, text string) {
	face := basicfont.Face7x13
	metrics := face.Metrics()

	textW := font.MeasureString(face, text).Ceil()
	textH := metrics.Height.Ceil()
	if textW == 0 || textH == 0 {
		return
	}

	glyphs := image.NewRGBA(image.Rect(0, 0, textW, textH))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(0, metrics.Ascent.Ceil()),
	}
	d.DrawString(text)

	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	scale := max(1, min(w*2/3/textW, h/16/textH))

	scaledW, scaledH := textW*scale, textH*scale
	x := max(0, (w-scaledW)/2)
	y := max(0, h-scaledH-h/8)

	dst := image.Rect(x, y, x+scaledW, y+scaledH)
	draw.NearestNeighbor.Scale(canvas, dst, glyphs, glyphs.Bounds(), draw.Over, nil)
}

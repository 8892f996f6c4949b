package resolver

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/your-org/facewatch/internal/imaging"
)

var (
	MatchColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	NoMatchColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	labelColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const boxThickness = 2

// Label returns the caption drawn above a face.
func Label(f FaceResult) string {
	if best, ok := f.Best(); ok {
		return fmt.Sprintf("%s: %.1f%%", best.Name, best.Confidence*100)
	}
	return fmt.Sprintf("Face %d: No match", f.Index)
}

// Annotate draws a box and caption for every face on a copy of img. Matched
// faces are green, unmatched faces blue.
func Annotate(img image.Image, faces []FaceResult) *image.RGBA {
	out := imaging.Clone(img)
	for _, f := range faces {
		c := NoMatchColor
		if len(f.Matches) > 0 {
			c = MatchColor
		}
		drawBox(out, f.Region.Rect(), c)
		drawLabel(out, f.Region.X, f.Region.Y, Label(f), c)
	}
	return out
}

func drawBox(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawLabel(dst *image.RGBA, x, y int, text string, bg color.Color) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()

	box := image.Rect(x, y-h-10, x+w, y)
	draw.Draw(dst, box.Intersect(dst.Bounds()), image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x, y-5),
	}
	d.DrawString(text)
}

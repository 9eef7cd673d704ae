package portrait

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const faceBoxStroke = 5

var faceBoxColor = color.NRGBA{R: 255, A: 255}

// DrawFaceBox returns a copy of img with a red outline around face.
func DrawFaceBox(img image.Image, face image.Rectangle) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	// the outline includes the right and bottom edge of the box
	r := face.Sub(img.Bounds().Min)
	r.Max = r.Max.Add(image.Pt(1, 1))

	for i := 0; i < faceBoxStroke; i++ {
		inner := r.Inset(i)
		if inner.Empty() {
			break
		}
		for x := inner.Min.X; x < inner.Max.X; x++ {
			setIn(out, b, x, inner.Min.Y)
			setIn(out, b, x, inner.Max.Y-1)
		}
		for y := inner.Min.Y; y < inner.Max.Y; y++ {
			setIn(out, b, inner.Min.X, y)
			setIn(out, b, inner.Max.X-1, y)
		}
	}
	return out
}

func setIn(img *image.NRGBA, b image.Rectangle, x, y int) {
	if image.Pt(x, y).In(b) {
		img.SetNRGBA(x, y, faceBoxColor)
	}
}

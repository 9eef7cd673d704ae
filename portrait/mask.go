package portrait

import (
	"image"
)

// EllipseMask returns a binary mask of the given size holding a filled
// ellipse inscribed in its bounds: 255 inside, 0 outside. A square size
// gives a circle.
func EllipseMask(size image.Point) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, size.X, size.Y))
	if size.X <= 0 || size.Y <= 0 {
		return mask
	}

	rx := float64(size.X) / 2
	ry := float64(size.Y) / 2
	for y := 0; y < size.Y; y++ {
		dy := (float64(y) + 0.5 - ry) / ry
		row := y * mask.Stride
		for x := 0; x < size.X; x++ {
			dx := (float64(x) + 0.5 - rx) / rx
			if dx*dx+dy*dy <= 1 {
				mask.Pix[row+x] = 0xff
			}
		}
	}
	return mask
}

// applyMask lowers the alpha of every pixel to the mask value, keeping
// transparency the source already had.
func applyMask(img *image.NRGBA, mask *image.Alpha) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := y * img.Stride
		mrow := y * mask.Stride
		for x := 0; x < b.Dx(); x++ {
			if m := mask.Pix[mrow+x]; img.Pix[row+x*4+3] > m {
				img.Pix[row+x*4+3] = m
			}
		}
	}
}

// putAlpha replaces the alpha channel with the mask.
func putAlpha(img *image.NRGBA, mask *image.Alpha) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := y * img.Stride
		mrow := y * mask.Stride
		for x := 0; x < b.Dx(); x++ {
			img.Pix[row+x*4+3] = mask.Pix[mrow+x]
		}
	}
}

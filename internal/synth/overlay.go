package synth

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawOverlay burns text into an 8-bit plane, centered and scaled to about
// 30% of the width, with a dark outline. Text pixels take the top gray level
// and outline pixels take level 0, so the set of levels is unchanged.
func drawOverlay(pix []uint8, width, height int, text string, levels int) {
	face := basicfont.Face7x13
	baseTextWidth := font.MeasureString(face, text).Ceil()
	baseTextHeight := 13
	if baseTextWidth == 0 {
		return
	}

	textImg := image.NewAlpha(image.Rect(0, 0, baseTextWidth, baseTextHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)}, // baseline leaves room for descenders
	}
	drawer.DrawString(text)

	scaleFactor := float64(width) * 0.3 / float64(baseTextWidth)
	if scaleFactor < 1.0 {
		scaleFactor = 1.0
	}
	scaledWidth := int(float64(baseTextWidth) * scaleFactor)
	scaledHeight := int(float64(baseTextHeight) * scaleFactor)

	scaled := image.NewAlpha(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), textImg, textImg.Bounds(), draw.Over, nil)

	posX := (width - scaledWidth) / 2
	posY := (height - scaledHeight) / 2
	outline := max(1, scaledHeight/10)

	set := func(x, y int, v uint8) {
		if x >= 0 && x < width && y >= 0 && y < height {
			pix[y*width+x] = v
		}
	}

	top := Quantize(255, levels)
	for sy := 0; sy < scaledHeight; sy++ {
		for sx := 0; sx < scaledWidth; sx++ {
			if scaled.AlphaAt(sx, sy).A < 128 {
				continue
			}
			for dy := -outline; dy <= outline; dy++ {
				for dx := -outline; dx <= outline; dx++ {
					if dx*dx+dy*dy <= outline*outline {
						set(posX+sx+dx, posY+sy+dy, 0)
					}
				}
			}
		}
	}
	for sy := 0; sy < scaledHeight; sy++ {
		for sx := 0; sx < scaledWidth; sx++ {
			if scaled.AlphaAt(sx, sy).A >= 128 {
				set(posX+sx, posY+sy, top)
			}
		}
	}
}

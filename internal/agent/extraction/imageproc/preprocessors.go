// Package imageproc holds the deterministic page clean-up chain that runs
// before OCR.
package imageproc

import (
	"errors"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Preprocessor transforms one page image.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// Chain applies preprocessors in order.
type Chain []Preprocessor

func (c Chain) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	var err error
	for _, p := range c {
		if img, err = p.Process(img); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// DefaultChain is grayscale, denoise, adaptive threshold, morphological close.
func DefaultChain(morphKernel int) Chain {
	return Chain{
		NewGrayscaleProcessor(),
		NewDenoiseProcessor(0.5),
		NewAdaptiveThresholdProcessor(11, 2),
		NewMorphCloseProcessor(morphKernel),
	}
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return toGray(imaging.Grayscale(img)), nil
}

// 降噪处理器
type DenoiseProcessor struct {
	sigma float64
}

func NewDenoiseProcessor(sigma float64) *DenoiseProcessor {
	return &DenoiseProcessor{sigma: sigma}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	if p.sigma <= 0 {
		return toGray(img), nil
	}
	return toGray(imaging.Blur(img, p.sigma)), nil
}

// AdaptiveThresholdProcessor binarises against the mean of a square
// neighbourhood: a pixel turns black when it is darker than mean-constant.
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++
	}
	return &AdaptiveThresholdProcessor{blockSize: blockSize, constant: constant}
}

func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	gray := toGray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	result := image.NewGray(image.Rect(0, 0, w, h))

	// summed-area table, one row and column of padding
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(gray.Pix[y*gray.Stride+x])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	half := p.blockSize / 2
	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-half, 0, h), clamp(y+half+1, 0, h)
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-half, 0, w), clamp(x+half+1, 0, w)
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			count := int64((x1 - x0) * (y1 - y0))
			mean := float64(sum) / float64(count)

			v := uint8(255)
			if float64(gray.Pix[y*gray.Stride+x]) < mean-p.constant {
				v = 0
			}
			result.Pix[y*result.Stride+x] = v
		}
	}
	return result, nil
}

// MorphCloseProcessor dilates then erodes with a square kernel, which
// removes dark specks smaller than the kernel. Kernel sizes below 2 are
// the identity.
type MorphCloseProcessor struct {
	kernel int
}

func NewMorphCloseProcessor(kernel int) *MorphCloseProcessor {
	return &MorphCloseProcessor{kernel: kernel}
}

func (p *MorphCloseProcessor) Process(img image.Image) (image.Image, error) {
	gray := toGray(img)
	if p.kernel < 2 {
		return gray, nil
	}
	return rankFilter(rankFilter(gray, p.kernel, true), p.kernel, false), nil
}

// rankFilter takes the max (dilate) or min (erode) over a k×k window.
func rankFilter(src *image.Gray, k int, takeMax bool) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	lo := (k - 1) / 2
	hi := k - 1 - lo
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := src.Pix[y*src.Stride+x]
			for yy := clamp(y-lo, 0, h-1); yy <= clamp(y+hi, 0, h-1); yy++ {
				row := src.Pix[yy*src.Stride:]
				for xx := clamp(x-lo, 0, w-1); xx <= clamp(x+hi, 0, w-1); xx++ {
					v := row[xx]
					if (takeMax && v > best) || (!takeMax && v < best) {
						best = v
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = best
		}
	}
	return dst
}

// toGray returns img as a zero-origin *image.Gray, converting when needed.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

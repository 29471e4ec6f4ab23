// Package imaging turns image files into normalized model input tensors.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/Brownie44l1/breed-classify/internal/model"
)

// ErrImageLoad is returned when an image is missing, unreadable or cannot be decoded.
var ErrImageLoad = errors.New("image load error")

// ImageNet channel statistics, in R, G, B order.
var (
	mean = [3]float64{0.485, 0.456, 0.406}
	std  = [3]float64{0.229, 0.224, 0.225}
)

const channels = 3

// Load decodes the image at path. The file is closed before returning.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w: %w", path, err, ErrImageLoad)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w: %w", path, err, ErrImageLoad)
	}
	return img, nil
}

// BuildTensor loads filePath and converts it to a [1, 3, size, size] tensor.
func BuildTensor(filePath string, size int) (model.Tensor, error) {
	if size <= 0 {
		return model.Tensor{}, errors.Errorf("invalid target size %d", size)
	}
	img, err := Load(filePath)
	if err != nil {
		return model.Tensor{}, err
	}
	return FromImage(img, size), nil
}

// Resize stretches img to size x size. Each output pixel interpolates the
// 2x2 source neighbourhood around (d+0.5)*scale-0.5, clamped at the edges,
// with no widening of the kernel when shrinking.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// FromImage resizes img and fills a channel-first tensor normalized with
// the ImageNet statistics.
func FromImage(img image.Image, size int) model.Tensor {
	resized := Resize(img, size)
	bounds := resized.Bounds()

	plane := size * size
	data := make([]float32, channels*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := y*size + x
			data[i] = normalize(c.R, 0)
			data[plane+i] = normalize(c.G, 1)
			data[2*plane+i] = normalize(c.B, 2)
		}
	}

	return model.Tensor{
		Shape: []int64{1, channels, int64(size), int64(size)},
		Data:  data,
	}
}

func normalize(v uint8, ch int) float32 {
	return float32((float64(v) - 255*mean[ch]) / (255 * std[ch]))
}

package imaging

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writeJPEG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}

func expected(v float64, ch int) float64 {
	return (v - 255*mean[ch]) / (255 * std[ch])
}

func TestBuildTensorShapeAndFinite(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 64, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 64; x++ {
			src.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 6), uint8(x + y), 255})
		}
	}
	path := writeJPEG(t, dir, "gradient.jpg", src)

	const size = 32
	tensor, err := BuildTensor(path, size)
	if err != nil {
		t.Fatalf("BuildTensor failed: %v", err)
	}
	want := []int64{1, 3, size, size}
	if len(tensor.Shape) != len(want) {
		t.Fatalf("unexpected shape %v", tensor.Shape)
	}
	for i := range want {
		if tensor.Shape[i] != want[i] {
			t.Fatalf("unexpected shape %v, want %v", tensor.Shape, want)
		}
	}
	if len(tensor.Data) != 3*size*size {
		t.Fatalf("expected %d values, got %d", 3*size*size, len(tensor.Data))
	}
	for i, v := range tensor.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("value %d is not finite: %v", i, v)
		}
	}
}

func TestFromImageSolidGrayNormalization(t *testing.T) {
	const size = 8
	tensor := FromImage(solidImage(20, 13, color.RGBA{128, 128, 128, 255}), size)

	plane := size * size
	for ch := 0; ch < 3; ch++ {
		want := expected(128, ch)
		for i := 0; i < plane; i++ {
			got := float64(tensor.Data[ch*plane+i])
			if math.Abs(got-want) > 1e-5 {
				t.Fatalf("channel %d pixel %d: got %v, want %v", ch, i, got, want)
			}
		}
	}
}

func TestFromImageChannelOrder(t *testing.T) {
	const size = 4
	tensor := FromImage(solidImage(6, 6, color.RGBA{255, 0, 0, 255}), size)

	plane := size * size
	checks := []struct {
		ch    int
		value float64
	}{
		{0, 255},
		{1, 0},
		{2, 0},
	}
	for _, c := range checks {
		got := float64(tensor.Data[c.ch*plane])
		if want := expected(c.value, c.ch); math.Abs(got-want) > 1e-5 {
			t.Fatalf("channel %d: got %v, want %v", c.ch, got, want)
		}
	}
}

func TestBuildTensorMissingFile(t *testing.T) {
	_, err := BuildTensor(filepath.Join(t.TempDir(), "missing.jpg"), 16)
	if !errors.Is(err, ErrImageLoad) {
		t.Fatalf("expected ErrImageLoad, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected the open error to stay in the chain, got %v", err)
	}
}

// Vertical 1px stripes, white on odd columns. A 3x shrink samples source
// column 3*dx+1 exactly, so the output must keep alternating.
func TestResizeDownscaleSamplesWithoutAveraging(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if x%2 == 1 {
				c = color.RGBA{255, 255, 255, 255}
			}
			src.Set(x, y, c)
		}
	}

	got := Resize(src, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := uint8(0)
			if (3*x+1)%2 == 1 {
				want = 255
			}
			if r := got.RGBAAt(x, y).R; r != want {
				t.Fatalf("pixel (%d,%d): got %d, want %d", x, y, r, want)
			}
		}
	}

	tensor := FromImage(src, 8)
	if v := float64(tensor.Data[0]); math.Abs(v-expected(255, 0)) > 1e-5 {
		t.Fatalf("first red value %v, want %v", v, expected(255, 0))
	}
	if v := float64(tensor.Data[1]); math.Abs(v-expected(0, 0)) > 1e-5 {
		t.Fatalf("second red value %v, want %v", v, expected(0, 0))
	}
}

// Two columns (0 and 200) stretched to four: half-pixel centres put the
// samples at -0.25, 0.25, 0.75 and 1.25, clamped at both edges.
func TestResizeUpscaleInterpolatesWithHalfPixelCentres(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		src.Set(0, y, color.RGBA{0, 0, 0, 255})
		src.Set(1, y, color.RGBA{200, 200, 200, 255})
	}

	got := Resize(src, 4)
	want := []uint8{0, 50, 150, 200}
	for y := 0; y < 4; y++ {
		for x, w := range want {
			if r := got.RGBAAt(x, y).R; r != w {
				t.Fatalf("pixel (%d,%d): got %d, want %d", x, y, r, w)
			}
		}
	}
}

func TestBuildTensorCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := BuildTensor(path, 16)
	if !errors.Is(err, ErrImageLoad) {
		t.Fatalf("expected ErrImageLoad, got %v", err)
	}
}

func TestBuildTensorRejectsNonPositiveSize(t *testing.T) {
	path := writeJPEG(t, t.TempDir(), "black.jpg", solidImage(4, 4, color.Black))
	if _, err := BuildTensor(path, 0); err == nil {
		t.Fatal("expected error for zero size")
	}
}

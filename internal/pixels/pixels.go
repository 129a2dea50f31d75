// Package pixels converts between image files, image.Image values and the
// uint8 pixel tensors the generation pipeline produces and consumes.
package pixels

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Load reads an image file and returns a [height, width, 3] uint8 tensor in
// [0, 255]. When width and height are positive the image is resized first.
func Load(path string, width, height int) (*tensors.Tensor, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	if width > 0 && height > 0 {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	return FromImage(img), nil
}

// Save writes an image to disk; the format is derived from the extension.
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save image %s: %w", path, err)
	}
	return nil
}

// FromImage converts an image to a [height, width, 3] uint8 tensor.
func FromImage(img image.Image) *tensors.Tensor {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	h, w := b.Dy(), b.Dx()

	flat := make([]uint8, h*w*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := nrgba.PixOffset(x, y)
			dst := (y*w + x) * 3
			flat[dst] = nrgba.Pix[src]
			flat[dst+1] = nrgba.Pix[src+1]
			flat[dst+2] = nrgba.Pix[src+2]
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, h, w, 3)
}

// TensorToImages materializes a rank-4 [batch, height, width, channels]
// uint8 tensor as one image per batch element.
func TensorToImages(t *tensors.Tensor) ([]image.Image, error) {
	if t.Rank() != 4 {
		return nil, fmt.Errorf("expected rank-4 tensor, got rank %d", t.Rank())
	}
	if t.DType() != dtypes.Uint8 {
		return nil, fmt.Errorf("expected uint8 pixels, got %s", t.DType())
	}
	dims := t.Shape().Dimensions
	batch, h, w, c := dims[0], dims[1], dims[2], dims[3]
	if c != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", c)
	}

	flat := tensors.CopyFlatData[uint8](t)
	images := make([]image.Image, batch)
	frameSize := h * w * c
	for i := 0; i < batch; i++ {
		images[i] = frameToImage(flat[i*frameSize:(i+1)*frameSize], h, w)
	}
	return images, nil
}

// TensorToFrameImages materializes a rank-5
// [batch, frames, height, width, channels] uint8 tensor as per-batch frame
// sequences.
func TensorToFrameImages(t *tensors.Tensor) ([][]image.Image, error) {
	if t.Rank() != 5 {
		return nil, fmt.Errorf("expected rank-5 tensor, got rank %d", t.Rank())
	}
	if t.DType() != dtypes.Uint8 {
		return nil, fmt.Errorf("expected uint8 pixels, got %s", t.DType())
	}
	dims := t.Shape().Dimensions
	batch, frames, h, w, c := dims[0], dims[1], dims[2], dims[3], dims[4]
	if c != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", c)
	}

	flat := tensors.CopyFlatData[uint8](t)
	frameSize := h * w * c
	out := make([][]image.Image, batch)
	for i := 0; i < batch; i++ {
		out[i] = make([]image.Image, frames)
		for f := 0; f < frames; f++ {
			offset := (i*frames + f) * frameSize
			out[i][f] = frameToImage(flat[offset:offset+frameSize], h, w)
		}
	}
	return out, nil
}

// DenormalizeToHWC maps a [batch, channels, height, width] float32 tensor
// in [-1, 1] to a [batch, height, width, channels] uint8 tensor in [0, 255],
// clipping out-of-range values.
func DenormalizeToHWC(t *tensors.Tensor) (*tensors.Tensor, error) {
	if t.Rank() != 4 {
		return nil, fmt.Errorf("expected rank-4 tensor, got rank %d", t.Rank())
	}
	if t.DType() != dtypes.Float32 {
		return nil, fmt.Errorf("expected float32 pixels, got %s", t.DType())
	}
	dims := t.Shape().Dimensions
	b, c, h, w := dims[0], dims[1], dims[2], dims[3]

	flat := tensors.CopyFlatData[float32](t)
	out := make([]uint8, len(flat))
	for n := 0; n < b; n++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					v := flat[((n*c+ch)*h+y)*w+x]
					v = (v + 1) * 127.5
					if v < 0 {
						v = 0
					} else if v > 255 {
						v = 255
					}
					out[((n*h+y)*w+x)*c+ch] = uint8(v + 0.5)
				}
			}
		}
	}
	return tensors.FromFlatDataAndDimensions(out, b, h, w, c), nil
}

func frameToImage(flat []uint8, h, w int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = flat[src]
			img.Pix[dst+1] = flat[src+1]
			img.Pix[dst+2] = flat[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	return img
}

package dataset

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// ImageFolder is a Source loaded from a directory structure where each
// subdirectory represents a class. Images are decoded lazily on Sample.
type ImageFolder struct {
	imagePaths []string
	labels     []int
	classNames []string
	classToIdx map[string]int
}

// NewImageFolder creates a source from a directory structure. Subdirectories
// of root become classes in lexical order.
func NewImageFolder(root string, extensions []string) (*ImageFolder, error) {
	if len(extensions) == 0 {
		extensions = []string{".jpg", ".jpeg", ".png"}
	}

	src := &ImageFolder{
		classToIdx: make(map[string]int),
	}

	classes, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list classes")
	}

	classIdx := 0
	for _, classPath := range classes {
		info, err := os.Stat(classPath)
		if err != nil || !info.IsDir() {
			continue
		}

		className := filepath.Base(classPath)
		src.classNames = append(src.classNames, className)
		src.classToIdx[className] = classIdx

		for _, ext := range extensions {
			files, err := filepath.Glob(filepath.Join(classPath, "*"+ext))
			if err != nil {
				continue
			}

			for _, file := range files {
				src.imagePaths = append(src.imagePaths, file)
				src.labels = append(src.labels, classIdx)
			}
		}

		classIdx++
	}

	if len(src.imagePaths) == 0 {
		return nil, errors.Errorf("no images found in %s", root)
	}

	return src, nil
}

// Len returns the number of images in the source.
func (d *ImageFolder) Len() int {
	return len(d.imagePaths)
}

// Label returns the class index of the image at idx.
func (d *ImageFolder) Label(idx int) int {
	return d.labels[idx]
}

// ClassNames returns the class names in index order.
func (d *ImageFolder) ClassNames() []string {
	return append([]string{}, d.classNames...)
}

// Sample decodes the image at idx into a CHW Float32 tensor with values
// scaled to [0, 1].
func (d *ImageFolder) Sample(idx int) (*tensor.Tensor, error) {
	if idx < 0 || idx >= len(d.imagePaths) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(d.imagePaths))
	}

	f, err := os.Open(d.imagePaths[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", d.imagePaths[idx])
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", d.imagePaths[idx])
	}

	return imageToTensor(img)
}

// imageToTensor converts an image to a [3, H, W] Float32 tensor.
func imageToTensor(img image.Image) (*tensor.Tensor, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	data := make([]float32, 3*height*width)
	plane := height * width

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			pos := y*width + x
			data[pos] = float32(r) / 65535.0
			data[plane+pos] = float32(g) / 65535.0
			data[2*plane+pos] = float32(b) / 65535.0
		}
	}

	return tensor.NewTensor([]int{3, height, width}, tensor.Float32, data)
}

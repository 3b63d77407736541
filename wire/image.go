package wire

import "fmt"

// Element sizes for the supported dtype names. The names follow the numpy
// convention, which is what remote peers of the original lumos service speak.
var dtypeSizes = map[string]int{
	"bool":    1,
	"int8":    1,
	"uint8":   1,
	"int16":   2,
	"uint16":  2,
	"int32":   4,
	"uint32":  4,
	"int64":   8,
	"uint64":  8,
	"float32": 4,
	"float64": 8,
}

// DtypeSize returns the element size in bytes for a dtype name, or an error
// for an unknown name.
func DtypeSize(dtype string) (int, error) {
	size, ok := dtypeSizes[dtype]
	if !ok {
		return 0, fmt.Errorf("unknown dtype: %q", dtype)
	}
	return size, nil
}

// Image is an n-dimensional element buffer with shape and element-type
// metadata. Data holds the elements flattened in row-major order.
type Image struct {
	Shape []int
	Dtype string
	Data  []byte
}

// Elems returns the number of elements implied by the shape. An empty shape
// describes a scalar (one element).
func (im *Image) Elems() int {
	n := 1
	for _, dim := range im.Shape {
		n *= dim
	}
	return n
}

// Validate checks that the dtype is known, every dimension is positive, and
// the data length matches shape × element size.
func (im *Image) Validate() error {
	size, err := DtypeSize(im.Dtype)
	if err != nil {
		return err
	}
	for _, dim := range im.Shape {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension: %d", dim)
		}
	}
	if want := im.Elems() * size; len(im.Data) != want {
		return fmt.Errorf("image data is %d bytes, shape %v with dtype %s needs %d",
			len(im.Data), im.Shape, im.Dtype, want)
	}
	return nil
}

package hwenc

import (
	"fmt"
	"slices"
)

// CopySurface copies the pixel data of src into dst when the two stages use
// separate pools. The 12 bpp crop sizes must match; otherwise nothing is
// copied and ErrGeometryMismatch is returned.
func CopySurface(src, dst *FrameSurface) error {
	if src == nil || dst == nil {
		return fmt.Errorf("copy surface: %w", StatusNullPtr)
	}
	srcSize, dstSize := src.geom.CropSize(), dst.geom.CropSize()
	if srcSize != dstSize {
		return fmt.Errorf("copy %d bytes into %d: %w", srcSize, dstSize, ErrGeometryMismatch)
	}

	dst.TimeStamp = src.TimeStamp
	if len(src.data) == len(dst.data) && slices.Equal(src.planes, dst.planes) {
		copy(dst.data, src.data)
		return nil
	}
	// Different alignment: flat copy of the packed crop region.
	copy(dst.data[:dstSize], src.data[:srcSize])
	return nil
}

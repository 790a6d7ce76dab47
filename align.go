package hwenc

// Align16 rounds x up to the next multiple of 16.
// Codec frame widths (and progressive heights) must be multiples of 16.
func Align16(x int) int {
	return (x + 15) &^ 15
}

// Align32 rounds x up to the next multiple of 32.
// Surface allocations and interlaced heights use 32.
func Align32(x int) int {
	return (x + 31) &^ 31
}

// alignHeight returns the codec-aligned height for a picture structure.
func alignHeight(h int, ps PicStruct) int {
	if ps == PicStructProgressive {
		return Align16(h)
	}
	return Align32(h)
}

package imageio

// DebayerRGGB interpolates a raw RGGB mosaic bilinearly and returns the
// luminance (R + G + B) / 3 of every pixel.
//
//	(even row, even col) = R
//	(even row, odd  col) = Gr
//	(odd  row, even col) = Gb
//	(odd  row, odd  col) = B
//
// Edge pixels use clamped neighbor lookups.
func DebayerRGGB(data []float32, width, height int) []float32 {
	out := make([]float32, width*height)
	px := func(x, y int) float32 {
		return data[clamp(y, height)*width+clamp(x, width)]
	}
	cross := func(x, y int) float32 {
		return (px(x-1, y) + px(x+1, y) + px(x, y-1) + px(x, y+1)) / 4
	}
	diagonal := func(x, y int) float32 {
		return (px(x-1, y-1) + px(x+1, y-1) + px(x-1, y+1) + px(x+1, y+1)) / 4
	}

	for y := 0; y < height; y++ {
		evenRow := y%2 == 0
		for x := 0; x < width; x++ {
			evenCol := x%2 == 0
			var r, g, b float32

			switch {
			case evenRow && evenCol:
				r, g, b = px(x, y), cross(x, y), diagonal(x, y)
			case evenRow:
				r = (px(x-1, y) + px(x+1, y)) / 2
				g = px(x, y)
				b = (px(x, y-1) + px(x, y+1)) / 2
			case evenCol:
				r = (px(x, y-1) + px(x, y+1)) / 2
				g = px(x, y)
				b = (px(x-1, y) + px(x+1, y)) / 2
			default:
				r, g, b = diagonal(x, y), cross(x, y), px(x, y)
			}

			out[y*width+x] = (r + g + b) / 3
		}
	}
	return out
}

func clamp(v, size int) int {
	if v < 0 {
		return 0
	}
	if v >= size {
		return size - 1
	}
	return v
}

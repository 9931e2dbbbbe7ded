package chart

// LocateCurve returns the first column in [xMin, xMax) on row whose green and
// blue channels are both below threshold, or 0 when the row has no such
// pixel. The leftmost dark pixel always wins.
func LocateCurve(m *PixelMatrix, row, xMin, xMax int, threshold uint8) int {
	if m == nil || row < 0 || row >= m.Height {
		return 0
	}
	if xMin < 0 {
		xMin = 0
	}
	if xMax > m.Width {
		xMax = m.Width
	}
	for col := xMin; col < xMax; col++ {
		p := m.At(row, col)
		if p.G < threshold && p.B < threshold {
			return col
		}
	}
	return 0
}

// Interpolate maps column onto the [yMin, yMax] axis spanned by [xMin, xMax].
// Column 0 is the curve-not-found sentinel and always maps to 0.
func Interpolate(column, xMin, xMax int, yMin, yMax float64) float64 {
	if column == 0 {
		return 0
	}
	return yMin + (yMax-yMin)/float64(xMax-xMin)*float64(column-xMin)
}

// EnforceMonotonic returns a copy of values in which no entry is smaller than
// the corrected entry before it. values must be in increasing-rarity order.
func EnforceMonotonic(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			out[i] = out[i-1]
		}
	}
	return out
}

// Digitize runs LocateCurve and Interpolate for every level and returns the
// raw, uncorrected values in level order.
func Digitize(m *PixelMatrix, levels []ProbabilityLevel, axisMax float64, threshold uint8) []float64 {
	raw := make([]float64, len(levels))
	for i, l := range levels {
		col := LocateCurve(m, l.Row, l.XMin, l.XMax, threshold)
		raw[i] = Interpolate(col, l.XMin, l.XMax, 0, axisMax)
	}
	return raw
}

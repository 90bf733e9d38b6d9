package serial

// Range is a half-open byte range [Start, End) of a frame.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) valid(n int) bool {
	return r.Start >= 0 && r.Start <= r.End && r.End <= n
}

// Halves splits total bytes into n consecutive ranges by integer division.
// With n == 2 the first range is [0, total/2).
func Halves(total, n int) []Range {
	if n <= 0 {
		return nil
	}
	out := make([]Range, n)
	for k := 0; k < n; k++ {
		out[k] = Range{Start: total * k / n, End: total * (k + 1) / n}
	}
	return out
}

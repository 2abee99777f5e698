package content

import "slices"

// ComputeSizes returns the configured widths strictly below actual, plus
// actual itself, ascending and without duplicates. A non-positive actual
// width yields nil.
func ComputeSizes(widths []int, actual int) []int {
	if actual <= 0 {
		return nil
	}
	out := make([]int, 0, len(widths)+1)
	for _, w := range widths {
		if w > 0 && w < actual {
			out = append(out, w)
		}
	}
	out = append(out, actual)
	slices.Sort(out)
	return slices.Compact(out)
}

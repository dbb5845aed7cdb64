package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/local/pdfslicer/internal/pdftest"
)

// parsePages turns "all" or "1,3-4" (1-based) into sorted zero-based indices.
func parsePages(list string, total int) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" || strings.EqualFold(list, "all") {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	var idx []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if a, b, ok := strings.Cut(part, "-"); ok {
			lo, hi = a, b
		}
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		if from < 1 || to < from || to > total {
			return nil, fmt.Errorf("page range %q outside 1-%d", part, total)
		}
		for p := from; p <= to; p++ {
			idx = append(idx, p-1)
		}
	}
	return pdftest.NormalizePages(idx, total), nil
}

package sources

import (
	"fmt"
	"strconv"
	"strings"
)

// maxRangeSpan bounds how many sub-selectors a single year range may
// expand to.
const maxRangeSpan = 50

// ExpandSelector expands a directive selector into the concrete
// sub-selectors a batch sync fetches one by one.
//
// Two forms are recognized, and compose:
//
//	"a,b,c"            -> ["a", "b", "c"]
//	"slug:2019-2023"   -> ["slug:2019", "slug:2020", ..., "slug:2023"]
//
// Anything else expands to itself.
func ExpandSelector(selector string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		expanded, err := expandRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("selector %q expands to nothing", selector)
	}
	return out, nil
}

// expandRange expands "slug:START-END" year ranges; other selectors
// pass through unchanged.
func expandRange(selector string) ([]string, error) {
	slug, rangeSpec, ok := strings.Cut(selector, ":")
	if !ok {
		return []string{selector}, nil
	}

	startStr, endStr, ok := strings.Cut(rangeSpec, "-")
	if !ok {
		return []string{selector}, nil
	}

	start, err1 := strconv.Atoi(startStr)
	end, err2 := strconv.Atoi(endStr)
	if err1 != nil || err2 != nil || len(startStr) != 4 || len(endStr) != 4 {
		return []string{selector}, nil
	}

	if end < start {
		return nil, fmt.Errorf("selector %q: range end precedes start", selector)
	}
	if end-start+1 > maxRangeSpan {
		return nil, fmt.Errorf("selector %q: range spans more than %d items", selector, maxRangeSpan)
	}

	out := make([]string, 0, end-start+1)
	for year := start; year <= end; year++ {
		out = append(out, fmt.Sprintf("%s:%d", slug, year))
	}
	return out, nil
}

package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RemainderRange marks the slot of a mixed-mode spec that covers every
// page not claimed by an explicit range.
const RemainderRange = "remainder"

var (
	ErrBadRangeExpr     = errors.New("malformed page range expression")
	ErrRangeOutOfBounds = errors.New("page range outside document")
	ErrRangeOverlap     = errors.New("page ranges overlap")
	ErrMultipleRemaind  = errors.New("at most one remainder slot allowed")
)

// ModeRange assigns a color mode to a page range expression such as
// "1-3,7" or to the remainder slot.
type ModeRange struct {
	Ranges string    `json:"ranges"`
	Mode   ColorMode `json:"mode"`
}

// ParsePageRange expands an expression like "1-3,5,8-9" into the sorted
// set of page numbers it covers. Pages are one-based and must fall
// within totalPages.
func ParsePageRange(expr string, totalPages int) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrBadRangeExpr, expr)
		}

		lo, hi := part, part
		if idx := strings.Index(part, "-"); idx >= 0 {
			lo, hi = strings.TrimSpace(part[:idx]), strings.TrimSpace(part[idx+1:])
		}

		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadRangeExpr, part)
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadRangeExpr, part)
		}
		if start > end {
			return nil, fmt.Errorf("%w: %q is inverted", ErrBadRangeExpr, part)
		}
		if start < 1 || end > totalPages {
			return nil, fmt.Errorf("%w: %q exceeds 1-%d", ErrRangeOutOfBounds, part, totalPages)
		}

		for p := start; p <= end; p++ {
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := 1; p <= totalPages; p++ {
		if seen[p] {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

// ValidateModeSpec checks a mixed-mode spec at admission: every range
// well-formed and within the page count, no page claimed twice, and at
// most one remainder slot.
func ValidateModeSpec(spec []ModeRange, totalPages int) error {
	claimed := make(map[int]bool)
	remainders := 0

	for _, mr := range spec {
		if mr.Mode != ModeBW && mr.Mode != ModeColor {
			return fmt.Errorf("unknown color mode %q", mr.Mode)
		}
		if strings.EqualFold(strings.TrimSpace(mr.Ranges), RemainderRange) {
			remainders++
			if remainders > 1 {
				return ErrMultipleRemaind
			}
			continue
		}

		pages, err := ParsePageRange(mr.Ranges, totalPages)
		if err != nil {
			return err
		}
		for _, p := range pages {
			if claimed[p] {
				return fmt.Errorf("%w: page %d", ErrRangeOverlap, p)
			}
			claimed[p] = true
		}
	}

	return nil
}

// colorPageCount counts pages printed in color under a validated spec.
// Pages not claimed by an explicit range follow the remainder slot, or
// default to bw when no remainder is given.
func colorPageCount(spec []ModeRange, totalPages int) int {
	modes := make(map[int]ColorMode, totalPages)
	remainderMode := ModeBW

	for _, mr := range spec {
		if strings.EqualFold(strings.TrimSpace(mr.Ranges), RemainderRange) {
			remainderMode = mr.Mode
			continue
		}
		pages, err := ParsePageRange(mr.Ranges, totalPages)
		if err != nil {
			continue
		}
		for _, p := range pages {
			modes[p] = mr.Mode
		}
	}

	count := 0
	for p := 1; p <= totalPages; p++ {
		mode, ok := modes[p]
		if !ok {
			mode = remainderMode
		}
		if mode == ModeColor {
			count++
		}
	}
	return count
}

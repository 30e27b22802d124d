package worklist

import (
	"slices"
	"sync"
)

// ExpandedRows tracks which rows of the current listing are open. Rows are
// identified by their 1-based position in the sorted, unpaginated list, so
// the set must be cleared whenever that order changes.
type ExpandedRows struct {
	mu   sync.Mutex
	rows map[int]struct{}
}

func NewExpandedRows() *ExpandedRows {
	return &ExpandedRows{rows: make(map[int]struct{})}
}

// Toggle flips row and reports whether it is now expanded.
func (e *ExpandedRows) Toggle(row int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rows[row]; ok {
		delete(e.rows, row)
		return false
	}
	e.rows[row] = struct{}{}
	return true
}

func (e *ExpandedRows) IsExpanded(row int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.rows[row]
	return ok
}

func (e *ExpandedRows) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.rows)
}

// Rows returns the expanded positions in ascending order.
func (e *ExpandedRows) Rows() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, 0, len(e.rows))
	for r := range e.rows {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

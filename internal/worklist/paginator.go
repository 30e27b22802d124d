package worklist

// CappedMax is the most studies a single query returns. Receiving exactly
// this many means the result set was truncated.
const CappedMax = 101

// Paginator pages through one capped window of query results on the client.
// Once the page number moves past the window the offset wraps back to zero
// and the next window is expected to come from a fresh query.
type Paginator struct {
	Cap int
}

func NewPaginator(limit int) Paginator {
	if limit <= 0 {
		limit = CappedMax
	}
	return Paginator{Cap: limit}
}

// WindowSize is the number of pages that fit in one capped result window.
func (p Paginator) WindowSize(perPage int) int {
	if perPage <= 0 {
		return 1
	}
	w := p.Cap / perPage
	if w < 1 {
		return 1
	}
	return w
}

// Offset is the index of the first visible row for page.
func (p Paginator) Offset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	return ((page - 1) % p.WindowSize(perPage)) * perPage
}

// QueryOffset is the index of the first study the data source must return
// so that the window containing page is loaded.
func (p Paginator) QueryOffset(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	w := p.WindowSize(perPage)
	return ((page - 1) / w) * w * perPage
}

// CanAdvance applies the forward-paging guard to a move away from current.
// Moves backwards and page size changes are never checked here.
func (p Paginator) CanAdvance(current, perPage, numOfStudies int) bool {
	rolling := current % p.WindowSize(perPage)
	return max(rolling, 1)*perPage < numOfStudies
}

// CanSort reports whether the loaded set is complete enough to sort locally.
func (p Paginator) CanSort(numOfStudies int) bool {
	return numOfStudies < p.Cap
}

// DisplayCount is the study count shown in the filter bar. Past the first
// window the real total is unknown, so the cap is shown instead.
func (p Paginator) DisplayCount(page, perPage, numOfStudies int) int {
	if page*perPage > p.Cap-1 {
		return p.Cap
	}
	return numOfStudies
}

// Visible returns the rows of sorted that belong on page.
func Visible[T any](p Paginator, sorted []T, page, perPage int) []T {
	off := p.Offset(page, perPage)
	if off >= len(sorted) {
		return nil
	}
	end := min(off+perPage, len(sorted))
	return sorted[off:end]
}

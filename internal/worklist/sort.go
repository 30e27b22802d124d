package worklist

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"radiology-worklist/internal/models"
)

// Sorter orders worklist rows. A Sorter is not safe for concurrent use
// because the collator keeps scratch buffers.
type Sorter struct {
	collator *collate.Collator
}

// NewSorter returns a Sorter collating strings for tag.
func NewSorter(tag language.Tag) *Sorter {
	return &Sorter{collator: collate.New(tag)}
}

// EffectiveSort resolves what order is actually applied. A truncated result
// set and an unset sortBy both fall back to ascending study date.
func EffectiveSort(p Paginator, v FilterValues, numOfStudies int) (by string, dir SortDirection, disabled bool) {
	if !p.CanSort(numOfStudies) {
		return SortStudyDate, SortAscending, true
	}
	if v.SortBy == "" {
		return SortStudyDate, SortAscending, false
	}
	dir = v.SortDirection
	if dir == SortNone {
		dir = SortAscending
	}
	return v.SortBy, dir, false
}

// Sort returns a stably sorted copy of studies.
func (s *Sorter) Sort(studies []*models.Study, by string, dir SortDirection) []*models.Study {
	out := slices.Clone(studies)
	slices.SortStableFunc(out, func(a, b *models.Study) int {
		return s.Compare(a, b, by, dir)
	})
	return out
}

// Compare orders two studies by field. Missing values sort last in either
// direction.
func (s *Sorter) Compare(a, b *models.Study, by string, dir SortDirection) int {
	sign := 1
	if dir == SortDescending {
		sign = -1
	}
	switch by {
	case SortStudyDate:
		switch {
		case a.Date == "" && b.Date == "":
			return 0
		case a.Date == "":
			return 1
		case b.Date == "":
			return -1
		}
		return compareDates(a.Date, b.Date, sign)
	case SortInstances:
		return sign * cmp.Compare(a.Instances, b.Instances)
	case SortPatientName:
		return s.compareStrings(a.PatientName, b.PatientName, sign)
	case SortMRN:
		return s.compareStrings(a.MRN, b.MRN, sign)
	case SortDescription:
		return s.compareStrings(a.Description, b.Description, sign)
	case SortModalities:
		return s.compareStrings(a.Modalities, b.Modalities, sign)
	case SortAccession:
		return s.compareStrings(a.Accession, b.Accession, sign)
	}
	return 0
}

func (s *Sorter) compareStrings(a, b string, sign int) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	return sign * s.collator.CompareString(a, b)
}

// compareDates puts parseable dates ahead of unparseable ones when
// ascending and behind them when descending.
func compareDates(a, b string, sign int) int {
	ta, okA := models.ParseDate(a)
	tb, okB := models.ParseDate(b)
	switch {
	case okA && okB:
		return sign * ta.Compare(tb)
	case okA:
		return -sign
	case okB:
		return sign
	}
	return 0
}

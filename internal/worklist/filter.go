package worklist

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

type SortDirection string

const (
	SortNone       SortDirection = "none"
	SortAscending  SortDirection = "ascending"
	SortDescending SortDirection = "descending"
)

// Sortable worklist columns. SortBy may also be empty.
const (
	SortPatientName = "patientName"
	SortMRN         = "mrn"
	SortStudyDate   = "studyDate"
	SortDescription = "description"
	SortModalities  = "modalities"
	SortAccession   = "accession"
	SortInstances   = "instances"
)

var sortableFields = []string{
	SortPatientName, SortMRN, SortStudyDate, SortDescription,
	SortModalities, SortAccession, SortInstances,
}

// IsSortable reports whether field names a sortable column.
func IsSortable(field string) bool {
	return slices.Contains(sortableFields, field)
}

// DateRange bounds the study date filter. Empty strings mean unbounded.
type DateRange struct {
	Start string `json:"startDate"`
	End   string `json:"endDate"`
}

// FilterValues is the full filter, sort and page selection of a worklist
// screen.
type FilterValues struct {
	PatientName    string        `json:"patientName"`
	MRN            string        `json:"mrn"`
	StudyDate      DateRange     `json:"studyDate"`
	Description    string        `json:"description"`
	Modalities     []string      `json:"modalities"`
	Accession      string        `json:"accession"`
	SortBy         string        `json:"sortBy"`
	SortDirection  SortDirection `json:"sortDirection"`
	PageNumber     int           `json:"pageNumber"`
	ResultsPerPage int           `json:"resultsPerPage"`
	Datasources    string        `json:"datasources"`
	ConfigURL      string        `json:"configUrl"`
}

// Default returns the values a fresh screen starts from.
func Default() FilterValues {
	return FilterValues{
		Modalities:     []string{},
		SortDirection:  SortNone,
		PageNumber:     1,
		ResultsPerPage: 25,
	}
}

// Clone returns a copy that shares no slices with v.
func (v FilterValues) Clone() FilterValues {
	out := v
	out.Modalities = slices.Clone(v.Modalities)
	if out.Modalities == nil {
		out.Modalities = []string{}
	}
	return out
}

// Equal compares two selections; modality order is irrelevant.
func (v FilterValues) Equal(o FilterValues) bool {
	return v.PatientName == o.PatientName &&
		v.MRN == o.MRN &&
		v.StudyDate == o.StudyDate &&
		v.Description == o.Description &&
		v.Accession == o.Accession &&
		v.SortBy == o.SortBy &&
		v.SortDirection == o.SortDirection &&
		v.PageNumber == o.PageNumber &&
		v.ResultsPerPage == o.ResultsPerPage &&
		v.Datasources == o.Datasources &&
		v.ConfigURL == o.ConfigURL &&
		sameSet(v.Modalities, o.Modalities)
}

// IsFiltering reports whether anything differs from the defaults.
func (v FilterValues) IsFiltering(defaults FilterValues) bool {
	return !v.Equal(defaults)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

// Partial holds the subset of FilterValues present in a query string or a
// session copy. Nil fields are absent.
type Partial struct {
	PatientName    *string
	MRN            *string
	StartDate      *string
	EndDate        *string
	Description    *string
	Modalities     []string
	Accession      *string
	SortBy         *string
	SortDirection  *SortDirection
	PageNumber     *int
	ResultsPerPage *int
	Datasources    *string
	ConfigURL      *string
}

// Query keys owned by FilterValues, lower-cased.
const (
	keyPatientName    = "patientname"
	keyMRN            = "mrn"
	keyStartDate      = "startdate"
	keyEndDate        = "enddate"
	keyDescription    = "description"
	keyModalities     = "modalities"
	keyAccession      = "accession"
	keySortBy         = "sortby"
	keySortDirection  = "sortdirection"
	keyPageNumber     = "pagenumber"
	keyResultsPerPage = "resultsperpage"
	keyDatasources    = "datasources"
	keyConfigURL      = "configurl"
)

var ownedKeys = []string{
	keyPatientName, keyMRN, keyStartDate, keyEndDate, keyDescription,
	keyModalities, keyAccession, keySortBy, keySortDirection, keyPageNumber,
	keyResultsPerPage, keyDatasources, keyConfigURL,
}

// IsOwnedKey reports whether a query key (any case) belongs to the filter.
func IsOwnedKey(key string) bool {
	return slices.Contains(ownedKeys, strings.ToLower(key))
}

var strictInt = regexp.MustCompile(`^[+-]?[0-9]+$`)

// parseStrictInt accepts only a complete base-10 integer.
func parseStrictInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !strictInt.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FromQuery reads the filter keys out of a query string. Keys are matched
// case-insensitively; absent or unparsable values are left out. When a key
// repeats, the last occurrence wins.
func FromQuery(q url.Values) Partial {
	lower := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		lower[strings.ToLower(k)] = vs[len(vs)-1]
	}
	str := func(key string) *string {
		v, ok := lower[key]
		if !ok {
			return nil
		}
		return &v
	}
	// Empty dates are the same as absent ones.
	date := func(key string) *string {
		v, ok := lower[key]
		if !ok || v == "" {
			return nil
		}
		return &v
	}

	p := Partial{
		PatientName: str(keyPatientName),
		MRN:         str(keyMRN),
		StartDate:   date(keyStartDate),
		EndDate:     date(keyEndDate),
		Description: str(keyDescription),
		Accession:   str(keyAccession),
		Datasources: str(keyDatasources),
		ConfigURL:   str(keyConfigURL),
	}
	if v, ok := lower[keyModalities]; ok && v != "" {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				p.Modalities = append(p.Modalities, m)
			}
		}
	}
	if v, ok := lower[keySortBy]; ok && (v == "" || IsSortable(v)) {
		p.SortBy = &v
	}
	if v, ok := lower[keySortDirection]; ok {
		switch d := SortDirection(v); d {
		case SortNone, SortAscending, SortDescending:
			p.SortDirection = &d
		}
	}
	if v, ok := lower[keyPageNumber]; ok {
		if n, ok := parseStrictInt(v); ok && n >= 1 {
			p.PageNumber = &n
		}
	}
	if v, ok := lower[keyResultsPerPage]; ok {
		if n, ok := parseStrictInt(v); ok && n > 0 {
			p.ResultsPerPage = &n
		}
	}
	return p
}

// PartialOf lifts a full selection into a Partial with every field set.
func PartialOf(v FilterValues) Partial {
	v = v.Clone()
	p := Partial{
		PatientName:    &v.PatientName,
		MRN:            &v.MRN,
		Description:    &v.Description,
		Modalities:     v.Modalities,
		Accession:      &v.Accession,
		SortBy:         &v.SortBy,
		SortDirection:  &v.SortDirection,
		PageNumber:     &v.PageNumber,
		ResultsPerPage: &v.ResultsPerPage,
		Datasources:    &v.Datasources,
		ConfigURL:      &v.ConfigURL,
	}
	if v.StudyDate.Start != "" {
		p.StartDate = &v.StudyDate.Start
	}
	if v.StudyDate.End != "" {
		p.EndDate = &v.StudyDate.End
	}
	return p
}

// Merge overlays the present fields of p onto base.
func Merge(base FilterValues, p Partial) FilterValues {
	out := base.Clone()
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.PatientName, p.PatientName)
	set(&out.MRN, p.MRN)
	set(&out.StudyDate.Start, p.StartDate)
	set(&out.StudyDate.End, p.EndDate)
	set(&out.Description, p.Description)
	set(&out.Accession, p.Accession)
	set(&out.SortBy, p.SortBy)
	set(&out.Datasources, p.Datasources)
	set(&out.ConfigURL, p.ConfigURL)
	if p.Modalities != nil {
		out.Modalities = slices.Clone(p.Modalities)
	}
	if p.SortDirection != nil {
		out.SortDirection = *p.SortDirection
	}
	if p.PageNumber != nil {
		out.PageNumber = *p.PageNumber
	}
	if p.ResultsPerPage != nil {
		out.ResultsPerPage = *p.ResultsPerPage
	}
	return out
}

// Reconcile returns the selection to commit when next replaces current.
// An edit that leaves the page number untouched is not a paging action, so
// it restarts pagination at page 1.
func Reconcile(current, next FilterValues) FilterValues {
	out := next.Clone()
	if out.PageNumber == current.PageNumber {
		out.PageNumber = 1
	}
	if out.ResultsPerPage <= 0 {
		out.ResultsPerPage = current.ResultsPerPage
	}
	if out.PageNumber < 1 {
		out.PageNumber = 1
	}
	return out
}

// Validate reports the first field a screen could not render with.
func (v FilterValues) Validate() error {
	switch {
	case v.PageNumber < 1:
		return fmt.Errorf("pageNumber %d: must be at least 1", v.PageNumber)
	case v.ResultsPerPage <= 0:
		return fmt.Errorf("resultsPerPage %d: must be positive", v.ResultsPerPage)
	case v.SortBy != "" && !IsSortable(v.SortBy):
		return fmt.Errorf("sortBy %q: not a sortable field", v.SortBy)
	}
	switch v.SortDirection {
	case SortNone, SortAscending, SortDescending:
	default:
		return fmt.Errorf("sortDirection %q: unknown", v.SortDirection)
	}
	return nil
}

// ToggleSort applies a click on a column header: a new column sorts
// ascending, the current column flips direction.
func ToggleSort(v FilterValues, field string) FilterValues {
	out := v.Clone()
	if !IsSortable(field) {
		return out
	}
	if v.SortBy == field && v.SortDirection == SortAscending {
		out.SortDirection = SortDescending
	} else {
		out.SortDirection = SortAscending
	}
	out.SortBy = field
	return out
}

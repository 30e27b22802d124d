package worklist

import (
	"net/url"
	"strconv"
	"strings"
)

// Serialize writes the non-default fields of values into the query of
// current. Parameters the filter does not own, and the fragment, are kept.
// changed is false when the resulting query is equivalent to the current
// one, in which case no navigation should happen.
func Serialize(values, defaults FilterValues, current *url.URL) (next *url.URL, changed bool) {
	if current == nil {
		current = &url.URL{Path: "/"}
	}
	before := current.Query()

	q := url.Values{}
	for k, vs := range before {
		if IsOwnedKey(k) {
			continue
		}
		q[k] = append([]string(nil), vs...)
	}

	str := func(key, v, def string) {
		if v != def {
			q.Set(key, v)
		}
	}
	str("patientName", values.PatientName, defaults.PatientName)
	str("mrn", values.MRN, defaults.MRN)
	str("startDate", values.StudyDate.Start, defaults.StudyDate.Start)
	str("endDate", values.StudyDate.End, defaults.StudyDate.End)
	str("description", values.Description, defaults.Description)
	if !sameSet(values.Modalities, defaults.Modalities) && len(values.Modalities) > 0 {
		q.Set("modalities", strings.Join(values.Modalities, ","))
	}
	str("accession", values.Accession, defaults.Accession)
	str("sortBy", values.SortBy, defaults.SortBy)
	str("sortDirection", string(values.SortDirection), string(defaults.SortDirection))
	if values.PageNumber != defaults.PageNumber {
		q.Set("pageNumber", strconv.Itoa(values.PageNumber))
	}
	if values.ResultsPerPage != defaults.ResultsPerPage {
		q.Set("resultsPerPage", strconv.Itoa(values.ResultsPerPage))
	}
	str("datasources", values.Datasources, defaults.Datasources)
	str("configUrl", values.ConfigURL, defaults.ConfigURL)

	out := *current
	out.RawQuery = q.Encode()
	out.ForceQuery = false
	return &out, out.RawQuery != before.Encode()
}

// FromURL merges the filter keys in u over defaults.
func FromURL(defaults FilterValues, u *url.URL) FilterValues {
	if u == nil {
		return defaults.Clone()
	}
	return Merge(defaults, FromQuery(u.Query()))
}

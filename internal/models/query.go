package models

import "slices"

// StudyQuery is the search a worklist screen sends to its data source.
// Dates are DICOM DA strings; empty fields are not filtered on.
type StudyQuery struct {
	PatientName string
	MRN         string
	StartDate   string
	EndDate     string
	Description string
	Modalities  []string
	Accession   string
	Offset      int
	Limit       int
}

func (q StudyQuery) Equal(o StudyQuery) bool {
	return q.PatientName == o.PatientName &&
		q.MRN == o.MRN &&
		q.StartDate == o.StartDate &&
		q.EndDate == o.EndDate &&
		q.Description == o.Description &&
		q.Accession == o.Accession &&
		q.Offset == o.Offset &&
		q.Limit == o.Limit &&
		slices.Equal(q.Modalities, o.Modalities)
}

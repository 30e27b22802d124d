package models

import "time"

// Study is one row of the worklist as returned by the data source.
// Records are read-only once produced.
type Study struct {
	StudyInstanceUID string `json:"studyInstanceUid"`
	PatientName      string `json:"patientName"`
	MRN              string `json:"mrn"`
	Date             string `json:"date"` // DICOM DA, YYYYMMDD or YYYY.MM.DD
	Time             string `json:"time"` // DICOM TM
	Description      string `json:"description"`
	Modalities       string `json:"modalities"` // display string, e.g. "CT/SR"
	Accession        string `json:"accession"`
	Instances        int    `json:"instances"`
}

var (
	studyDateLayouts = []string{"20060102", "2006.01.02"}
	studyTimeLayouts = []string{"150405.000", "150405", "1504", "15"}
)

func parseLayouts(layouts []string, s string) (time.Time, bool) {
	for _, layout := range layouts {
		if len(layout) != len(s) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate accepts a DICOM DA value or its dotted legacy form.
func ParseDate(s string) (time.Time, bool) {
	return parseLayouts(studyDateLayouts, s)
}

// ParseTime accepts a DICOM TM value at hour, minute, second or
// millisecond precision.
func ParseTime(s string) (time.Time, bool) {
	return parseLayouts(studyTimeLayouts, s)
}

// ParseDateTime combines a DA and an optional TM value. ok is false when
// the date does not parse; an unparseable time counts as midnight.
func ParseDateTime(date, tm string) (time.Time, bool) {
	d, ok := ParseDate(date)
	if !ok {
		return time.Time{}, false
	}
	if t, ok := ParseTime(tm); ok {
		d = d.Add(time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond()))
	}
	return d, true
}

// GetStudyTime parses the DICOM time of the study. ok is false when the
// value is empty or matches none of the accepted layouts.
func (s *Study) GetStudyTime() (t time.Time, ok bool) {
	return ParseTime(s.Time)
}

// GetStudyDate parses the DICOM date of the study.
func (s *Study) GetStudyDate() (time.Time, bool) {
	return ParseDate(s.Date)
}

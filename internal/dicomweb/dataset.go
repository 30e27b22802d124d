package dicomweb

import (
	"encoding/json"
	"strconv"
	"strings"

	"radiology-worklist/internal/models"
)

// Element is one attribute of a DICOM JSON dataset.
type Element struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

// Dataset is a DICOM JSON object keyed by 8-digit hex tag.
type Dataset map[string]Element

const (
	tagStudyInstanceUID   = "0020000D"
	tagSeriesInstanceUID  = "0020000E"
	tagPatientName        = "00100010"
	tagPatientID          = "00100020"
	tagStudyDate          = "00080020"
	tagStudyTime          = "00080030"
	tagSeriesDate         = "00080021"
	tagSeriesTime         = "00080031"
	tagAccessionNumber    = "00080050"
	tagModality           = "00080060"
	tagModalitiesInStudy  = "00080061"
	tagStudyDescription   = "00081030"
	tagSeriesDescription  = "0008103E"
	tagSeriesNumber       = "00200011"
	tagNumStudyInstances  = "00201208"
	tagNumSeriesInstances = "00201209"
)

// Strings returns every value of tag as text. Person names use their
// alphabetic representation.
func (d Dataset) Strings(tag string) []string {
	el, ok := d[tag]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(el.Value))
	for _, raw := range el.Value {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var pn struct {
			Alphabetic string `json:"Alphabetic"`
		}
		if err := json.Unmarshal(raw, &pn); err == nil && pn.Alphabetic != "" {
			out = append(out, pn.Alphabetic)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			out = append(out, n.String())
		}
	}
	return out
}

func (d Dataset) String(tag string) string {
	if v := d.Strings(tag); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Int parses IS/US values that servers send either as numbers or strings.
func (d Dataset) Int(tag string) (int, bool) {
	s := strings.TrimSpace(d.String(tag))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

func (d Dataset) Study() *models.Study {
	instances, _ := d.Int(tagNumStudyInstances)
	return &models.Study{
		StudyInstanceUID: d.String(tagStudyInstanceUID),
		PatientName:      strings.ReplaceAll(d.String(tagPatientName), "^", " "),
		MRN:              d.String(tagPatientID),
		Date:             d.String(tagStudyDate),
		Time:             d.String(tagStudyTime),
		Description:      d.String(tagStudyDescription),
		Modalities:       strings.Join(d.Strings(tagModalitiesInStudy), "/"),
		Accession:        d.String(tagAccessionNumber),
		Instances:        instances,
	}
}

func (d Dataset) Series() *models.Series {
	s := &models.Series{
		SeriesInstanceUID: d.String(tagSeriesInstanceUID),
		StudyInstanceUID:  d.String(tagStudyInstanceUID),
		SeriesDate:        d.String(tagSeriesDate),
		SeriesTime:        d.String(tagSeriesTime),
		Description:       d.String(tagSeriesDescription),
		Modality:          d.String(tagModality),
	}
	if n, ok := d.Int(tagSeriesNumber); ok {
		s.SeriesNumber = &n
	}
	s.NumSeriesInstances, _ = d.Int(tagNumSeriesInstances)
	return s
}

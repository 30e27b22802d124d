package models

// ReferenceData feeds the worklist filter bar.
type ReferenceData struct {
	Modalities []Modality  `json:"modalities"`
	SortFields []SortField `json:"sort_fields"`
	PageSizes  []int       `json:"page_sizes"`
}

type Modality struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type SortField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// DefaultReferenceData lists the modalities and sortable columns offered by
// the filter bar.
func DefaultReferenceData() *ReferenceData {
	return &ReferenceData{
		Modalities: []Modality{
			{Code: "CT", Name: "Computed Tomography"},
			{Code: "MR", Name: "Magnetic Resonance"},
			{Code: "US", Name: "Ultrasound"},
			{Code: "CR", Name: "Computed Radiography"},
			{Code: "DX", Name: "Digital Radiography"},
			{Code: "MG", Name: "Mammography"},
			{Code: "NM", Name: "Nuclear Medicine"},
			{Code: "PT", Name: "Positron Emission Tomography"},
			{Code: "SM", Name: "Slide Microscopy"},
			{Code: "SR", Name: "Structured Report"},
			{Code: "SEG", Name: "Segmentation"},
		},
		SortFields: []SortField{
			{Key: "patientName", Label: "Patient Name"},
			{Key: "mrn", Label: "MRN"},
			{Key: "studyDate", Label: "Study Date"},
			{Key: "description", Label: "Description"},
			{Key: "modalities", Label: "Modality"},
			{Key: "accession", Label: "Accession #"},
			{Key: "instances", Label: "Instances"},
		},
		PageSizes: []int{25, 50, 100},
	}
}

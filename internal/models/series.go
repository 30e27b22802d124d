package models

// Series is a child record shown when a worklist row is expanded.
type Series struct {
	SeriesInstanceUID  string      `json:"seriesInstanceUid"`
	StudyInstanceUID   string      `json:"studyInstanceUid"`
	SeriesNumber       *int        `json:"seriesNumber,omitempty"`
	SeriesDate         string      `json:"seriesDate"`
	SeriesTime         string      `json:"seriesTime"`
	Description        string      `json:"description"`
	Modality           string      `json:"modality"`
	NumSeriesInstances int         `json:"numSeriesInstances"`
	Instances          []*Instance `json:"instances,omitempty"`
}

// Instance carries the per-file attributes the ingestion pipeline inspects.
type Instance struct {
	SOPInstanceUID string `json:"sopInstanceUid"`
	SOPClassUID    string `json:"sopClassUid"`
	Modality       string `json:"modality"`
	InstanceNumber int    `json:"instanceNumber"`
}

// StudyMetadata is the registered view of a study parsed from local files.
type StudyMetadata struct {
	StudyInstanceUID string    `json:"studyInstanceUid"`
	PatientName      string    `json:"patientName"`
	StudyDate        string    `json:"studyDate"`
	Series           []*Series `json:"series"`
}

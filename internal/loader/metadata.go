package loader

import (
	"slices"
	"sync"

	"radiology-worklist/internal/models"
)

// MetadataStore keeps what was parsed from local files, keyed by study.
type MetadataStore struct {
	mu      sync.RWMutex
	studies map[string]*models.StudyMetadata
}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{studies: make(map[string]*models.StudyMetadata)}
}

// Instance is the attribute set read from one file.
type Instance struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	PatientName       string
	StudyDate         string
	SeriesDate        string
	SeriesTime        string
	SeriesDescription string
	SeriesNumber      *int
	Modality          string
	InstanceNumber    int
}

// Add registers one instance under its study and series. Adding the same
// SOP instance twice replaces the earlier copy.
func (m *MetadataStore) Add(in Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()

	study, ok := m.studies[in.StudyInstanceUID]
	if !ok {
		study = &models.StudyMetadata{StudyInstanceUID: in.StudyInstanceUID}
		m.studies[in.StudyInstanceUID] = study
	}
	if study.PatientName == "" {
		study.PatientName = in.PatientName
	}
	if study.StudyDate == "" {
		study.StudyDate = in.StudyDate
	}

	idx := slices.IndexFunc(study.Series, func(s *models.Series) bool {
		return s.SeriesInstanceUID == in.SeriesInstanceUID
	})
	var series *models.Series
	if idx < 0 {
		series = &models.Series{
			SeriesInstanceUID: in.SeriesInstanceUID,
			StudyInstanceUID:  in.StudyInstanceUID,
			SeriesNumber:      in.SeriesNumber,
			SeriesDate:        in.SeriesDate,
			SeriesTime:        in.SeriesTime,
			Description:       in.SeriesDescription,
			Modality:          in.Modality,
		}
		study.Series = append(study.Series, series)
	} else {
		series = study.Series[idx]
	}

	inst := &models.Instance{
		SOPInstanceUID: in.SOPInstanceUID,
		SOPClassUID:    in.SOPClassUID,
		Modality:       in.Modality,
		InstanceNumber: in.InstanceNumber,
	}
	if i := slices.IndexFunc(series.Instances, func(x *models.Instance) bool {
		return x.SOPInstanceUID == in.SOPInstanceUID
	}); i >= 0 {
		series.Instances[i] = inst
	} else {
		series.Instances = append(series.Instances, inst)
	}
	series.NumSeriesInstances = len(series.Instances)
}

// GetStudy returns the registered metadata of uid.
func (m *MetadataStore) GetStudy(uid string) (*models.StudyMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.studies[uid]
	return s, ok
}

// StudyUIDs lists every registered study.
func (m *MetadataStore) StudyUIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.studies))
	for uid := range m.studies {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

// Package loader parses DICOM Part 10 files dropped into the local screen
// and registers their study, series and instance attributes.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"radiology-worklist/internal/models"
)

// ErrNoStudy is returned for files that parse but carry no study UID.
var ErrNoStudy = errors.New("loader: file has no StudyInstanceUID")

type Loader struct {
	store *MetadataStore
}

func New(store *MetadataStore) *Loader {
	return &Loader{store: store}
}

// Load parses f and registers it. It returns the study instance UIDs the
// file contributes to.
func (l *Loader) Load(ctx context.Context, f models.LocalFile) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, err := Parse(f.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	l.store.Add(in)
	return []string{in.StudyInstanceUID}, nil
}

// Parse reads the header attributes of one Part 10 file. Pixel data is
// skipped.
func Parse(data []byte) (Instance, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, dicom.SkipPixelData())
	if err != nil {
		return Instance{}, fmt.Errorf("parse dicom: %w", err)
	}
	in := Instance{
		StudyInstanceUID:  str(ds, tag.StudyInstanceUID),
		SeriesInstanceUID: str(ds, tag.SeriesInstanceUID),
		SOPInstanceUID:    str(ds, tag.SOPInstanceUID),
		SOPClassUID:       str(ds, tag.SOPClassUID),
		PatientName:       strings.ReplaceAll(str(ds, tag.PatientName), "^", " "),
		StudyDate:         str(ds, tag.StudyDate),
		SeriesDate:        str(ds, tag.SeriesDate),
		SeriesTime:        str(ds, tag.SeriesTime),
		SeriesDescription: str(ds, tag.SeriesDescription),
		Modality:          str(ds, tag.Modality),
	}
	if in.StudyInstanceUID == "" {
		return Instance{}, ErrNoStudy
	}
	if n, ok := integer(ds, tag.SeriesNumber); ok {
		in.SeriesNumber = &n
	}
	in.InstanceNumber, _ = integer(ds, tag.InstanceNumber)
	return in, nil
}

func str(ds dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return ""
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			return strings.TrimRight(strings.TrimSpace(v[0]), "\x00")
		}
	case []int:
		if len(v) > 0 {
			return strconv.Itoa(v[0])
		}
	}
	return ""
}

// integer reads IS values, which the parser keeps as strings, and binary
// integer VRs.
func integer(ds dicom.Dataset, t tag.Tag) (int, bool) {
	s := str(ds, t)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

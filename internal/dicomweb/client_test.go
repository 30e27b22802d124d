package dicomweb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"radiology-worklist/internal/models"
)

const studiesJSON = `[
  {
    "0020000D": {"vr": "UI", "Value": ["1.2.840.1"]},
    "00100010": {"vr": "PN", "Value": [{"Alphabetic": "Doe^Jane"}]},
    "00100020": {"vr": "LO", "Value": ["MRN-7"]},
    "00080020": {"vr": "DA", "Value": ["20240115"]},
    "00080030": {"vr": "TM", "Value": ["0930"]},
    "00081030": {"vr": "LO", "Value": ["CT CHEST"]},
    "00080061": {"vr": "CS", "Value": ["CT", "SR"]},
    "00080050": {"vr": "SH", "Value": ["ACC1"]},
    "00201208": {"vr": "IS", "Value": [42]}
  },
  {
    "0020000D": {"vr": "UI", "Value": ["1.2.840.2"]},
    "00201208": {"vr": "IS", "Value": ["7"]}
  }
]`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, zerolog.Nop())
}

func TestSearchStudies(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studies" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/dicom+json")
		_, _ = w.Write([]byte(studiesJSON))
	})

	studies, err := c.SearchStudies(context.Background(), models.StudyQuery{
		PatientName: "Doe",
		StartDate:   "20240101",
		Modalities:  []string{"CT", "MR"},
		Limit:       500,
	})
	if err != nil {
		t.Fatalf("SearchStudies: %v", err)
	}
	if len(studies) != 2 {
		t.Fatalf("got %d studies", len(studies))
	}
	s := studies[0]
	if s.PatientName != "Doe Jane" || s.MRN != "MRN-7" || s.Modalities != "CT/SR" || s.Instances != 42 || s.Time != "0930" {
		t.Errorf("study = %+v", s)
	}
	if studies[1].Instances != 7 {
		t.Errorf("string IS value not parsed: %+v", studies[1])
	}
	for _, want := range []string{"limit=101", "PatientName=%2ADoe%2A", "StudyDate=20240101-", "ModalitiesInStudy=CT%2CMR"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearchStudies_NoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	studies, err := c.SearchStudies(context.Background(), models.StudyQuery{})
	if err != nil || len(studies) != 0 {
		t.Errorf("SearchStudies = %v, %v", studies, err)
	}
}

func TestSearchStudies_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	_, err := c.SearchStudies(context.Background(), models.StudyQuery{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestSearchSeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/studies/1.2.3/series" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"0020000E":{"vr":"UI","Value":["1.2.3.4"]},"00200011":{"vr":"IS","Value":[3]},"00080060":{"vr":"CS","Value":["SM"]},"00201209":{"vr":"IS","Value":[12]}}]`))
	})
	list, err := c.SearchSeries(context.Background(), "1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d series", len(list))
	}
	s := list[0]
	if s.StudyInstanceUID != "1.2.3" || s.SeriesNumber == nil || *s.SeriesNumber != 3 || s.Modality != "SM" || s.NumSeriesInstances != 12 {
		t.Errorf("series = %+v", s)
	}
}

func TestGet_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	_, err := c.SearchSeries(context.Background(), "x")
	if !errors.Is(err, ErrStatus) {
		t.Errorf("err = %v, want ErrStatus", err)
	}
}

package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"radiology-worklist/internal/config"
	"radiology-worklist/internal/logging"
	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/models"
)

func studies(n int) []*models.Study {
	out := make([]*models.Study, n)
	for i := range out {
		out[i] = &models.Study{
			StudyInstanceUID: fmt.Sprintf("1.2.%d", i+1),
			PatientName:      fmt.Sprintf("Patient %03d", i+1),
			MRN:              fmt.Sprintf("MRN%03d", i+1),
			Date:             fmt.Sprintf("202401%02d", i%28+1),
			Time:             "101500",
			Modalities:       "CT",
			Instances:        i + 1,
		}
	}
	return out
}

func newTestServer(t *testing.T, source *MockDataSource) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Worklist.Debounce = time.Hour // tests flush explicitly
	cfg.Bridge.OpenDelay = time.Millisecond
	srv, err := NewServer(Deps{Config: cfg, Log: logging.Nop(), Metrics: metrics.New(), Source: source})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

// browser keeps cookies between requests and sends the CSRF token the
// way the screens do.
type browser struct {
	t    *testing.T
	base string
	http *http.Client
}

func newBrowser(t *testing.T, ts *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &browser{t: t, base: ts.URL, http: &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.http.Get(b.base + path)
	if err != nil {
		b.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (b *browser) csrf() string {
	u, _ := url.Parse(b.base)
	for _, c := range b.http.Jar.Cookies(u) {
		if c.Name == "csrf_token" {
			return c.Value
		}
	}
	return ""
}

func (b *browser) post(path, contentType string, body io.Reader) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, body)
	if err != nil {
		b.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := b.csrf(); token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		b.t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (b *browser) postJSON(path, body string) *http.Response {
	return b.post(path, "application/json", strings.NewReader(body))
}

// onlyID returns the id of the single open screen.
func onlyID(t *testing.T, ids []string) string {
	t.Helper()
	if len(ids) != 1 {
		t.Fatalf("expected one open screen, got %d", len(ids))
	}
	return ids[0]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dicomFile(t *testing.T, study, modality string) []byte {
	t.Helper()
	ds := dicom.Dataset{}
	add := func(tg tag.Tag, v any) {
		el, err := dicom.NewElement(tg, v)
		if err != nil {
			t.Fatalf("NewElement(%v): %v", tg, err)
		}
		ds.Elements = append(ds.Elements, el)
	}
	sop := study + ".1.1"
	add(tag.FileMetaInformationVersion, []byte{0x00, 0x01})
	add(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.7"})
	add(tag.MediaStorageSOPInstanceUID, []string{sop})
	add(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"})
	add(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.7"})
	add(tag.SOPInstanceUID, []string{sop})
	add(tag.StudyInstanceUID, []string{study})
	add(tag.SeriesInstanceUID, []string{study + ".1"})
	add(tag.Modality, []string{modality})

	var buf bytes.Buffer
	if err := dicom.Write(&buf, ds, dicom.SkipVRVerification()); err != nil {
		t.Fatalf("dicom.Write: %v", err)
	}
	return buf.Bytes()
}

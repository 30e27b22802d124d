package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"radiology-worklist/internal/blob"
	"radiology-worklist/internal/bridge"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/store"
	"radiology-worklist/internal/worklist"
)

func TestWorklistRendersStudies(t *testing.T) {
	source := &MockDataSource{
		SearchStudiesFunc: func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
			return studies(3), nil
		},
	}
	_, ts := newTestServer(t, source)
	b := newBrowser(t, ts)

	resp, body := b.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{`id="study-table"`, "Patient 001", "Patient 003", "3 Studies"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if b.csrf() == "" {
		t.Error("expected a csrf cookie")
	}
	if q := source.Queries(); len(q) != 1 || q[0].Limit != worklist.CappedMax {
		t.Errorf("queries = %+v", q)
	}
}

func TestWorklistAppliesURLQuery(t *testing.T) {
	source := &MockDataSource{}
	_, ts := newTestServer(t, source)
	b := newBrowser(t, ts)

	b.get("/?patientName=Doe&modalities=CT,MR")
	q := source.Queries()
	if len(q) != 1 {
		t.Fatalf("queries = %d", len(q))
	}
	if q[0].PatientName != "Doe" || !slices.Equal(q[0].Modalities, []string{"CT", "MR"}) {
		t.Errorf("query = %+v", q[0])
	}
}

func TestWorklistSearchError(t *testing.T) {
	source := &MockDataSource{
		SearchStudiesFunc: func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
			return nil, errors.New("archive down")
		},
	}
	_, ts := newTestServer(t, source)
	_, body := newBrowser(t, ts).get("/")
	if !strings.Contains(body, "archive down") {
		t.Error("expected the search error on the page")
	}
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	_, ts := newTestServer(t, &MockDataSource{})
	resp, err := http.Post(ts.URL+"/worklist/filter?screen=x", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestUnknownScreen(t *testing.T) {
	_, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	b.get("/")
	if resp := b.postJSON("/worklist/filter?screen=nope", "{}"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWorklistPageGuard(t *testing.T) {
	tests := []struct {
		name    string
		studies int
		want    int
	}{
		{"more studies than one page", 30, 2},
		{"single page of studies", 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &MockDataSource{
				SearchStudiesFunc: func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
					return studies(tt.studies), nil
				},
			}
			srv, ts := newTestServer(t, source)
			b := newBrowser(t, ts)
			b.get("/")
			id := onlyID(t, srv.worklists.ids())

			if resp := b.post("/worklist/page?screen="+id+"&page=2", "", nil); resp.StatusCode != http.StatusNoContent {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			sc, _ := srv.worklists.get(id)
			if got := sc.ctrl.Values().PageNumber; got != tt.want {
				t.Errorf("page = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWorklistInvalidPage(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	b.get("/")
	id := onlyID(t, srv.worklists.ids())
	if resp := b.post("/worklist/page?screen="+id+"&page=zero", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWorklistFilterSyncsURLAndQuery(t *testing.T) {
	source := &MockDataSource{}
	srv, ts := newTestServer(t, source)
	b := newBrowser(t, ts)
	b.get("/")
	id := onlyID(t, srv.worklists.ids())

	resp := b.postJSON("/worklist/filter?screen="+id, `{"patientName":"Doe","modalities":["CT"],"startDate":"2024-01-01"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	sc, _ := srv.worklists.get(id)
	sc.ctrl.Flush()

	scripts := strings.Join(sc.out.drain(), "\n")
	if !strings.Contains(scripts, "history.pushState(") || !strings.Contains(scripts, "patientName=Doe") {
		t.Errorf("scripts = %q", scripts)
	}
	q := source.Queries()
	last := q[len(q)-1]
	if last.PatientName != "Doe" || last.StartDate != "20240101" || !slices.Equal(last.Modalities, []string{"CT"}) {
		t.Errorf("last query = %+v", last)
	}
}

func TestWorklistSortToggle(t *testing.T) {
	source := &MockDataSource{
		SearchStudiesFunc: func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
			return studies(5), nil
		},
	}
	srv, ts := newTestServer(t, source)
	b := newBrowser(t, ts)
	b.get("/")
	id := onlyID(t, srv.worklists.ids())
	sc, _ := srv.worklists.get(id)

	b.post("/worklist/sort?screen="+id+"&field=patientName", "", nil)
	v := sc.ctrl.Values()
	if v.SortBy != "patientName" || v.SortDirection != worklist.SortAscending {
		t.Fatalf("after first toggle = %s %s", v.SortBy, v.SortDirection)
	}
	b.post("/worklist/sort?screen="+id+"&field=patientName", "", nil)
	if v := sc.ctrl.Values(); v.SortDirection != worklist.SortDescending {
		t.Errorf("after second toggle = %s", v.SortDirection)
	}
	if resp := b.post("/worklist/sort?screen="+id+"&field=bogus", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus field status = %d", resp.StatusCode)
	}
}

func TestWorklistExpandFetchesSeries(t *testing.T) {
	var fetched atomic.Value
	source := &MockDataSource{
		SearchStudiesFunc: func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
			return studies(2), nil
		},
		SearchSeriesFunc: func(ctx context.Context, uid string) ([]*models.Series, error) {
			fetched.Store(uid)
			return []*models.Series{{SeriesInstanceUID: uid + ".1", Modality: "CT"}}, nil
		},
	}
	srv, ts := newTestServer(t, source)
	b := newBrowser(t, ts)
	b.get("/")
	id := onlyID(t, srv.worklists.ids())

	if resp := b.post("/worklist/expand?screen="+id+"&row=1", "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	waitFor(t, "series fetch", func() bool { return fetched.Load() != nil })

	sc, _ := srv.worklists.get(id)
	waitFor(t, "series rows", func() bool {
		rows := sc.ctrl.View().Rows
		return len(rows) > 0 && rows[0].Expanded && len(rows[0].Series) == 1
	})
}

func TestWorklistExpandedRowLaunchLinks(t *testing.T) {
	source := &MockDataSource{
		SearchStudiesFunc: func(ctx context.Context, q models.StudyQuery) ([]*models.Study, error) {
			return studies(2), nil
		},
	}
	srv, ts := newTestServer(t, source)
	b := newBrowser(t, ts)
	q := url.Values{}
	q.Set("patientName", "Doe")
	q.Set("configUrl", "https://cfg.example/app.json")
	b.get("/?" + q.Encode())
	id := onlyID(t, srv.worklists.ids())
	b.post("/worklist/expand?screen="+id+"&row=1", "", nil)

	sc, _ := srv.worklists.get(id)
	view := sc.ctrl.View()
	page := srv.worklistPage(sc, view)
	uid := view.Rows[0].Study.StudyInstanceUID
	links := page.Launch[uid]
	if len(links) != 2 {
		t.Fatalf("links = %+v", links)
	}
	wantQuery := "?StudyInstanceUIDs=" + uid + "&configUrl=https%3A%2F%2Fcfg.example%2Fapp.json&patientName=Doe"
	if links[0].Href != "/viewer"+wantQuery || !links[0].Valid {
		t.Errorf("viewer link = %+v", links[0])
	}
	// The fixture studies are CT, which the microscopy viewer cannot open.
	if links[1].Href != "/microscopy"+wantQuery || links[1].Valid {
		t.Errorf("microscopy link = %+v", links[1])
	}
	if _, ok := page.Launch[view.Rows[1].Study.StudyInstanceUID]; ok {
		t.Error("collapsed row should have no launch links")
	}

	html, err := srv.render.fragment("worklist", "worklist-results", pageData{Data: page, CSRFToken: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, `data-mode="viewer" href="/viewer?StudyInstanceUIDs=`+uid) {
		t.Errorf("fragment missing the viewer launch link: %s", html)
	}
}

func TestWorklistUnmountClearsSession(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	b.get("/")
	id := onlyID(t, srv.worklists.ids())

	b.postJSON("/worklist/filter?screen="+id, `{"patientName":"Doe"}`)
	client := cookie(t, b, clientCookie)
	session := store.Session(srv.storage, client)
	if _, err := session.Get(context.Background(), worklist.SessionKey); err != nil {
		t.Fatalf("session not saved: %v", err)
	}

	if resp := b.post("/worklist/unmount?screen="+id, "", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if srv.worklists.len() != 0 {
		t.Error("screen still registered")
	}
	if _, err := session.Get(context.Background(), worklist.SessionKey); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("session after unmount: %v", err)
	}
}

func TestWorklistSessionRestoresFilter(t *testing.T) {
	source := &MockDataSource{}
	srv, ts := newTestServer(t, source)
	b := newBrowser(t, ts)
	b.get("/")
	id := onlyID(t, srv.worklists.ids())
	b.postJSON("/worklist/filter?screen="+id, `{"patientName":"Doe"}`)

	// A second screen in the same browser starts from the saved filter.
	b.get("/")
	q := source.Queries()
	if last := q[len(q)-1]; last.PatientName != "Doe" {
		t.Errorf("restored query = %+v", last)
	}
}

func TestLocalUploadNavigatesToViewer(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	resp, body := b.get("/local")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "upload") {
		t.Fatalf("local page status = %d", resp.StatusCode)
	}
	id := onlyID(t, srv.locals.ids())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", "a.dcm")
	fw.Write(dicomFile(t, "1.2.3", "CT"))
	fw, _ = mw.CreateFormFile("files", "notes.txt")
	fw.Write([]byte("not dicom"))
	mw.Close()

	if resp := b.post("/local/upload?screen="+id, mw.FormDataContentType(), &buf); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	sc, _ := srv.locals.get(id)
	scripts := sc.out.drain()
	want := "window.location.assign(" + jsString("/viewer?StudyInstanceUIDs=1.2.3&datasources=dicomlocal") + ")"
	if !slices.Contains(scripts, want) {
		t.Errorf("scripts = %q", scripts)
	}
	st := sc.takeStatus()
	if st == nil || len(st.Failed) != 1 || len(st.Studies) != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestLocalUploadMicroscopyOpensSecondViewer(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	b.get("/local")
	id := onlyID(t, srv.locals.ids())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", "ct.dcm")
	fw.Write(dicomFile(t, "1.2.3", "CT"))
	fw, _ = mw.CreateFormFile("files", "sm.dcm")
	fw.Write(dicomFile(t, "4.5.6", "SM"))
	mw.Close()
	b.post("/local/upload?screen="+id, mw.FormDataContentType(), &buf)

	sc, _ := srv.locals.get(id)
	scripts := sc.out.drain()
	if len(scripts) != 2 {
		t.Fatalf("scripts = %q", scripts)
	}
	if !strings.HasPrefix(scripts[0], "window.open(") || !strings.Contains(scripts[0], "/microscopy?StudyInstanceUIDs=4.5.6") {
		t.Errorf("first script = %q", scripts[0])
	}
	if !strings.HasPrefix(scripts[1], "window.location.assign(") || !strings.Contains(scripts[1], "/viewer?StudyInstanceUIDs=1.2.3") {
		t.Errorf("second script = %q", scripts[1])
	}
}

// collector gathers a screen's scripts across several drains.
type collector struct {
	mu      sync.Mutex
	scripts []string
}

func (c *collector) has(out *outbox, substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = append(c.scripts, out.drain()...)
	for _, s := range c.scripts {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestBridgeRoundTrip(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	resp, body := b.get("/local?channel=abc")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "abc") {
		t.Fatalf("local page status = %d", resp.StatusCode)
	}
	first := onlyID(t, srv.locals.ids())

	payload := `{"type":"dicomFiles","blobs":["` +
		base64.StdEncoding.EncodeToString(dicomFile(t, "1.2.3", "CT")) + `","` +
		base64.StdEncoding.EncodeToString(dicomFile(t, "7.8.9", "MR")) + `"]}`
	resp, err := http.Post(ts.URL+"/bridge/host/abc/messages", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("post status = %d", resp.StatusCode)
	}

	sc, _ := srv.locals.get(first)
	var opened collector
	waitFor(t, "rehydrate window", func() bool { return opened.has(sc.out, bridge.RehydratePath) })

	b.get(bridge.RehydratePath)
	var second *localScreen
	for _, id := range srv.locals.ids() {
		if id != first {
			second, _ = srv.locals.get(id)
		}
	}
	if second == nil {
		t.Fatal("rehydrating screen not mounted")
	}
	want := "window.location.assign(" + jsString("/viewer?StudyInstanceUIDs=1.2.3&StudyInstanceUIDs=7.8.9&datasources=dicomlocal") + ")"
	if scripts := second.out.drain(); !slices.Contains(scripts, want) {
		t.Errorf("scripts = %q", scripts)
	}
}

func TestBridgeMessageUnknownChannel(t *testing.T) {
	_, ts := newTestServer(t, &MockDataSource{})
	resp, err := http.Post(ts.URL+"/bridge/host/missing/messages", "application/json", strings.NewReader(`{"blobs":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestBridgeMessageWithoutListener(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)
	b.get("/local?channel=gone")
	b.post("/local/unmount?screen="+onlyID(t, srv.locals.ids()), "", nil)

	resp, err := http.Post(ts.URL+"/bridge/host/gone/messages", "application/json", strings.NewReader(`{"blobs":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestBlobEndpoint(t *testing.T) {
	srv, ts := newTestServer(t, &MockDataSource{})
	u, err := srv.urls.Create(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}

	b := newBrowser(t, ts)
	resp, body := b.get(u)
	if resp.StatusCode != http.StatusOK || body != "payload" {
		t.Fatalf("status = %d, body = %q", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}

	if _, err := srv.blobs.Delete(context.Background(), strings.TrimPrefix(u, bridge.BlobPath)); err != nil && !errors.Is(err, blob.ErrNotFound) {
		t.Fatal(err)
	}
	if resp, _ := b.get(u); resp.StatusCode != http.StatusNotFound {
		t.Errorf("revoked status = %d, want 404", resp.StatusCode)
	}
}

func TestViewerStub(t *testing.T) {
	_, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)

	resp, body := b.get("/viewer?StudyInstanceUIDs=1.2.3&datasources=dicomlocal")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "1.2.3") || !strings.Contains(body, "dicomlocal") {
		t.Errorf("viewer status = %d", resp.StatusCode)
	}
	_, body = b.get("/microscopy?StudyInstanceUIDs=4.5.6")
	if !strings.Contains(body, "Slide Microscopy") {
		t.Error("microscopy viewer missing its mode")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, &MockDataSource{})
	b := newBrowser(t, ts)

	if _, body := b.get("/healthz"); body != "ok" {
		t.Errorf("healthz = %q", body)
	}
	b.get("/")
	resp, body := b.get("/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "worklist_study_searches_total") {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func cookie(t *testing.T, b *browser, name string) string {
	t.Helper()
	u, _ := url.Parse(b.base)
	for _, c := range b.http.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	t.Fatalf("cookie %s not set", name)
	return ""
}

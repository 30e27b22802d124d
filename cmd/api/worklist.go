package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"radiology-worklist/internal/extension"
	"radiology-worklist/internal/ingest"
	"radiology-worklist/internal/logging"
	"radiology-worklist/internal/middleware"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/store"
	"radiology-worklist/internal/worklist"
)

// worklistScreen is one mounted worklist. It is the controller's sink: the
// latest view and any URL changes wait here for the screen's stream.
type worklistScreen struct {
	id   string
	csrf string
	ctrl *worklist.Controller
	out  *outbox
	idle lingerTimer

	mu   sync.Mutex
	view *worklist.View
}

func (sc *worklistScreen) Render(v worklist.View) {
	sc.mu.Lock()
	sc.view = &v
	sc.mu.Unlock()
	sc.out.poke()
}

func (sc *worklistScreen) Navigate(u *url.URL) {
	sc.out.script("history.pushState(null, '', " + jsString(u.String()) + ")")
}

func (sc *worklistScreen) takeView() *worklist.View {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	v := sc.view
	sc.view = nil
	return v
}

// filterSignals are the filter bar inputs as datastar sends them.
type filterSignals struct {
	PatientName    string      `json:"patientName"`
	MRN            string      `json:"mrn"`
	StartDate      string      `json:"startDate"`
	EndDate        string      `json:"endDate"`
	Description    string      `json:"description"`
	Modalities     []string    `json:"modalities"`
	Accession      string      `json:"accession"`
	ResultsPerPage json.Number `json:"resultsPerPage"`
	ModalitySearch string      `json:"modalitySearch"`
}

const inputDateLayout = "2006-01-02"

// dateInput converts a stored study date to the value of a date input.
func dateInput(s string) string {
	if t, ok := models.ParseDate(s); ok {
		return t.Format(inputDateLayout)
	}
	return s
}

// dateValue converts a date input value back to the stored form.
func dateValue(s string) string {
	if t, err := time.Parse(inputDateLayout, s); err == nil {
		return t.Format("20060102")
	}
	return s
}

func signalsFor(v worklist.FilterValues) filterSignals {
	return filterSignals{
		PatientName:    v.PatientName,
		MRN:            v.MRN,
		StartDate:      dateInput(v.StudyDate.Start),
		EndDate:        dateInput(v.StudyDate.End),
		Description:    v.Description,
		Modalities:     v.Clone().Modalities,
		Accession:      v.Accession,
		ResultsPerPage: json.Number(strconv.Itoa(v.ResultsPerPage)),
	}
}

// apply copies the filter inputs onto v. Sort and paging are left alone.
func (f filterSignals) apply(v worklist.FilterValues) worklist.FilterValues {
	out := v.Clone()
	out.PatientName = f.PatientName
	out.MRN = f.MRN
	out.StudyDate = worklist.DateRange{Start: dateValue(f.StartDate), End: dateValue(f.EndDate)}
	out.Description = f.Description
	out.Accession = f.Accession
	out.Modalities = []string{}
	for _, m := range f.Modalities {
		if m = strings.TrimSpace(m); m != "" {
			out.Modalities = append(out.Modalities, m)
		}
	}
	return out
}

// launchLink opens one study in a viewer mode.
type launchLink struct {
	Mode  string
	Label string
	Href  string
	Valid bool
}

type worklistPage struct {
	Screen        string
	View          worklist.View
	Signals       filterSignals
	Modalities    []models.Modality
	SortFields    []models.SortField
	PageSizes     []int
	UploadEnabled bool
	// Launch holds the mode links of each expanded row, by study UID.
	Launch map[string][]launchLink
}

func (s *Server) worklistPage(sc *worklistScreen, v worklist.View) worklistPage {
	return worklistPage{
		Screen:        sc.id,
		View:          v,
		Signals:       signalsFor(v.Values),
		Modalities:    s.reference.Modalities,
		SortFields:    s.reference.SortFields,
		PageSizes:     s.reference.PageSizes,
		UploadEnabled: s.source.Config().DicomUploadEnabled,
		Launch:        s.launchLinks(sc.ctrl.Location(), v),
	}
}

// launchLinks lists the viewer modes for every expanded row. Microscopy is
// offered only when its extension is registered and only enabled for
// studies that carry slide images.
func (s *Server) launchLinks(location *url.URL, v worklist.View) map[string][]launchLink {
	out := make(map[string][]launchLink)
	for _, row := range v.Rows {
		if !row.Expanded {
			continue
		}
		uid := row.Study.StudyInstanceUID
		links := []launchLink{{
			Mode:  s.cfg.Local.ModePath,
			Label: "Basic Viewer",
			Href:  ingest.LaunchURL(s.cfg.Local.ModePath, location, uid, v.Values.ConfigURL),
			Valid: true,
		}}
		if s.extensions.IsRegistered(extension.Microscopy) {
			links = append(links, launchLink{
				Mode:  ingest.MicroscopyMode,
				Label: "Microscopy",
				Href:  ingest.LaunchURL(ingest.MicroscopyMode, location, uid, v.Values.ConfigURL),
				Valid: slices.Contains(strings.Split(row.Study.Modalities, "/"), "SM"),
			})
		}
		out[uid] = links
	}
	return out
}

func (s *Server) worklistOptions() worklist.Options {
	defaults := worklist.Default()
	if n := s.cfg.Worklist.DefaultPerPage; n > 0 {
		defaults.ResultsPerPage = n
	}
	return worklist.Options{
		Defaults:  defaults,
		Paginator: worklist.NewPaginator(s.cfg.Worklist.StudiesLimit),
		Debounce:  s.cfg.Worklist.Debounce,
		Log:       logging.Component(s.log, "worklist"),
		Metrics:   s.metrics,
	}
}

func (s *Server) handleWorklist(w http.ResponseWriter, r *http.Request) {
	client := s.clientID(w, r)
	sc := &worklistScreen{
		id:   uuid.NewString(),
		csrf: middleware.Token(r.Context()),
		out:  newOutbox(),
	}
	location := &url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	sc.ctrl = worklist.NewController(s.ctx, location, s.source, s.source,
		store.Session(s.storage, client), sc, s.worklistOptions())
	s.worklists.add(sc.id, sc)
	sc.idle.arm(s.linger, func() { s.unmountWorklist(sc.id) })

	view := sc.ctrl.Load()
	sc.takeView()
	s.render.render(w, r, "worklist", s.worklistPage(sc, view))
}

func (s *Server) worklistScreen(w http.ResponseWriter, r *http.Request) (*worklistScreen, bool) {
	sc, ok := s.worklists.get(r.URL.Query().Get("screen"))
	if !ok {
		http.Error(w, "Unknown screen", http.StatusNotFound)
	}
	return sc, ok
}

func (s *Server) unmountWorklist(id string) {
	sc, ok := s.worklists.remove(id)
	if !ok {
		return
	}
	sc.idle.disarm()
	sc.ctrl.Unmount()
}

func (s *Server) handleWorklistStream(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	sc.idle.disarm()
	defer sc.idle.arm(s.linger, func() { s.unmountWorklist(sc.id) })

	sse := datastar.NewSSE(w, r)
	sc.out.poke()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sc.out.notify:
			for _, js := range sc.out.drain() {
				if err := sse.ExecuteScript(js); err != nil {
					return
				}
			}
			v := sc.takeView()
			if v == nil {
				continue
			}
			html, err := s.render.fragment("worklist", "worklist-results",
				pageData{Data: s.worklistPage(sc, *v), CSRFToken: sc.csrf})
			if err != nil {
				s.log.Warn().Err(err).Msg("rendering worklist results")
				continue
			}
			if err := sse.PatchElements(html); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWorklistFilter(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	var signals filterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc.ctrl.Update(signals.apply(sc.ctrl.Values()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorklistSort(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	field := r.URL.Query().Get("field")
	if !worklist.IsSortable(field) {
		http.Error(w, "Invalid sort field", http.StatusBadRequest)
		return
	}
	if !sc.ctrl.View().SortDisabled {
		sc.ctrl.Update(worklist.ToggleSort(sc.ctrl.Values(), field))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorklistPage(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		http.Error(w, "Invalid page", http.StatusBadRequest)
		return
	}
	sc.ctrl.SetPage(page)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorklistPerPage(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	var signals filterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := signals.ResultsPerPage.Int64()
	if err != nil || n <= 0 {
		http.Error(w, "Invalid results per page", http.StatusBadRequest)
		return
	}
	sc.ctrl.SetResultsPerPage(int(n))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorklistExpand(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	row, err := strconv.Atoi(r.URL.Query().Get("row"))
	if err != nil || row < 1 {
		http.Error(w, "Invalid row", http.StatusBadRequest)
		return
	}
	sc.ctrl.Toggle(row)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorklistClear(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.worklistScreen(w, r)
	if !ok {
		return
	}
	sc.ctrl.Update(s.worklistOptions().Defaults)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorklistUnmount(w http.ResponseWriter, r *http.Request) {
	s.unmountWorklist(r.URL.Query().Get("screen"))
	w.WriteHeader(http.StatusNoContent)
}

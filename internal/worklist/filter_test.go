package worklist

import (
	"net/url"
	"testing"
)

func TestFromQuery_CaseInsensitiveAndStrict(t *testing.T) {
	q, _ := url.ParseQuery("PatientName=Doe&PAGENUMBER=3&resultsPerPage=50abc&sortDirection=sideways&modalities=CT,MR&startDate=20240101&unknown=1")
	p := FromQuery(q)

	if p.PatientName == nil || *p.PatientName != "Doe" {
		t.Errorf("PatientName = %v", p.PatientName)
	}
	if p.PageNumber == nil || *p.PageNumber != 3 {
		t.Errorf("PageNumber = %v", p.PageNumber)
	}
	if p.ResultsPerPage != nil {
		t.Errorf("unparsable resultsPerPage must be dropped, got %d", *p.ResultsPerPage)
	}
	if p.SortDirection != nil {
		t.Errorf("unknown sortDirection must be dropped, got %s", *p.SortDirection)
	}
	if len(p.Modalities) != 2 || p.Modalities[0] != "CT" || p.Modalities[1] != "MR" {
		t.Errorf("Modalities = %v", p.Modalities)
	}
	if p.StartDate == nil || *p.StartDate != "20240101" || p.EndDate != nil {
		t.Errorf("dates = %v / %v", p.StartDate, p.EndDate)
	}
	if p.MRN != nil || p.Accession != nil {
		t.Error("absent keys must stay nil")
	}
}

func TestParseStrictInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"3", 3, true},
		{"+4", 4, true},
		{"-2", -2, true},
		{"007", 7, true},
		{"", 0, false},
		{"3.5", 0, false},
		{"3abc", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseStrictInt(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseStrictInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromQuery_RejectsNonPositivePaging(t *testing.T) {
	q, _ := url.ParseQuery("pageNumber=0&resultsPerPage=-25")
	p := FromQuery(q)
	if p.PageNumber != nil || p.ResultsPerPage != nil {
		t.Errorf("non-positive paging must be dropped: %+v", p)
	}
}

func TestMerge_RightBiased(t *testing.T) {
	base := Default()
	base.MRN = "123"
	name := "Smith"
	merged := Merge(base, Partial{PatientName: &name})

	if merged.PatientName != "Smith" || merged.MRN != "123" {
		t.Errorf("Merge = %+v", merged)
	}
	if merged.ResultsPerPage != 25 || merged.PageNumber != 1 {
		t.Errorf("defaults lost: %+v", merged)
	}
}

func TestReconcile_PageReset(t *testing.T) {
	current := Default()
	current.PageNumber = 3

	t.Run("filter edit resets page", func(t *testing.T) {
		next := current.Clone()
		next.PatientName = "Doe"
		if got := Reconcile(current, next); got.PageNumber != 1 {
			t.Errorf("PageNumber = %d, want 1", got.PageNumber)
		}
	})
	t.Run("page change is kept", func(t *testing.T) {
		next := current.Clone()
		next.PageNumber = 4
		if got := Reconcile(current, next); got.PageNumber != 4 {
			t.Errorf("PageNumber = %d, want 4", got.PageNumber)
		}
	})
	t.Run("page size change resets page", func(t *testing.T) {
		next := current.Clone()
		next.ResultsPerPage = 50
		got := Reconcile(current, next)
		if got.PageNumber != 1 || got.ResultsPerPage != 50 {
			t.Errorf("got page %d size %d", got.PageNumber, got.ResultsPerPage)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FilterValues)
		ok     bool
	}{
		{"default", func(*FilterValues) {}, true},
		{"sortable", func(v *FilterValues) { v.SortBy = SortAccession; v.SortDirection = SortDescending }, true},
		{"zero page", func(v *FilterValues) { v.PageNumber = 0 }, false},
		{"zero page size", func(v *FilterValues) { v.ResultsPerPage = 0 }, false},
		{"unknown sort field", func(v *FilterValues) { v.SortBy = "birthDate" }, false},
		{"unknown direction", func(v *FilterValues) { v.SortDirection = "up" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Default()
			tt.mutate(&v)
			if err := v.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestEqual_IgnoresModalityOrder(t *testing.T) {
	a, b := Default(), Default()
	a.Modalities = []string{"CT", "MR"}
	b.Modalities = []string{"MR", "CT"}
	if !a.Equal(b) {
		t.Error("modality order should not matter")
	}
	if !a.IsFiltering(Default()) {
		t.Error("modalities set should count as filtering")
	}
}

func TestToggleSort(t *testing.T) {
	v := ToggleSort(Default(), SortPatientName)
	if v.SortBy != SortPatientName || v.SortDirection != SortAscending {
		t.Fatalf("first click = %s %s", v.SortBy, v.SortDirection)
	}
	v = ToggleSort(v, SortPatientName)
	if v.SortDirection != SortDescending {
		t.Errorf("second click direction = %s, want descending", v.SortDirection)
	}
	v = ToggleSort(v, SortPatientName)
	if v.SortDirection != SortAscending {
		t.Errorf("third click direction = %s, want ascending", v.SortDirection)
	}
	v = ToggleSort(v, SortMRN)
	if v.SortBy != SortMRN || v.SortDirection != SortAscending {
		t.Errorf("other column = %s %s", v.SortBy, v.SortDirection)
	}
	if got := ToggleSort(v, "birthDate"); got.SortBy != SortMRN {
		t.Errorf("unsortable field changed sortBy to %q", got.SortBy)
	}
}

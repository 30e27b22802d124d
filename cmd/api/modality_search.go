package main

import (
	"cmp"
	"net/http"
	"slices"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"radiology-worklist/internal/models"
)

// Levenshtein calculates the Levenshtein distance between two strings.
func Levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	n, m := len(r1), len(r2)
	if n > m {
		r1, r2 = r2, r1
		n, m = m, n
	}

	currentRow := make([]int, n+1)
	for i := 0; i <= n; i++ {
		currentRow[i] = i
	}

	for i := 1; i <= m; i++ {
		previousRow := currentRow
		currentRow = make([]int, n+1)
		currentRow[0] = i
		for j := 1; j <= n; j++ {
			add, del, change := previousRow[j]+1, currentRow[j-1]+1, previousRow[j-1]
			if r1[j-1] != r2[i-1] {
				change++
			}
			currentRow[j] = min(add, del, change)
		}
	}
	return currentRow[n]
}

// matchModalities ranks the modality options against query: substring hits
// first, then near misses on the code or the name.
func matchModalities(options []models.Modality, query string) []models.Modality {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return options
	}

	type scored struct {
		models.Modality
		score int
	}
	var results []scored
	for _, m := range options {
		code := strings.ToLower(m.Code)
		name := strings.ToLower(m.Name)

		score := -1
		if strings.Contains(code, query) || strings.Contains(name, query) {
			score = 0
		} else if dist := min(Levenshtein(query, code), Levenshtein(query, name)); dist <= 2 {
			score = dist
		}
		if score >= 0 {
			results = append(results, scored{Modality: m, score: score})
		}
	}
	slices.SortStableFunc(results, func(a, b scored) int {
		return cmp.Compare(a.score, b.score)
	})

	out := make([]models.Modality, 0, len(results))
	for _, r := range results {
		out = append(out, r.Modality)
	}
	return out
}

func (s *Server) handleModalitySearch(w http.ResponseWriter, r *http.Request) {
	signals := &filterSignals{}
	if err := datastar.ReadSignals(r, signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	matches := matchModalities(s.reference.Modalities, signals.ModalitySearch)
	html, err := s.render.fragment("worklist", "modality-options", matches)
	if err != nil {
		http.Error(w, "Template Execute Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sse := datastar.NewSSE(w, r)
	sse.PatchElements(html)
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"radiology-worklist/internal/middleware"
	"radiology-worklist/ui"
)

func toJSON(v interface{}) template.HTML {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return template.HTML(b)
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

var funcs = template.FuncMap{
	"json": toJSON,
	"add":  func(a, b int) int { return a + b },
	"sub":  func(a, b int) int { return a - b },
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
}

// pageData is what every template receives.
type pageData struct {
	Data      interface{}
	CSRFToken string
}

type renderer struct {
	pages map[string]*template.Template
}

// newRenderer parses each screen together with the layout.
func newRenderer(pages ...string) (*renderer, error) {
	rd := &renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, p := range pages {
		tmpl, err := template.New("layout").Funcs(funcs).
			ParseFS(ui.Templates, "templates/layout.html", "templates/"+p+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		rd.pages[p] = tmpl
	}
	return rd, nil
}

func (rd *renderer) render(w http.ResponseWriter, r *http.Request, page string, data interface{}) {
	var buf bytes.Buffer
	if err := rd.execute(&buf, page, "layout", pageData{Data: data, CSRFToken: middleware.Token(r.Context())}); err != nil {
		http.Error(w, "Template Execute Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// fragment renders one named block of page for an SSE patch.
func (rd *renderer) fragment(page, name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := rd.execute(&buf, page, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (rd *renderer) execute(buf *bytes.Buffer, page, name string, data interface{}) error {
	tmpl, ok := rd.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return tmpl.ExecuteTemplate(buf, name, data)
}

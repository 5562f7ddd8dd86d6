package render

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/znz-systems/sesdash/internal/stats"
)

// Renderer parses and executes HTML templates from an embedded filesystem.
type Renderer struct {
	templates map[string]*template.Template
}

// Funcs returns the template helpers. Times are shown in loc.
func Funcs(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"epoch": func(ts int64) string {
			return time.Unix(ts, 0).In(loc).Format("2006-01-02 15:04:05")
		},
		"epochPtr": func(ts *int64) string {
			if ts == nil {
				return ""
			}
			return time.Unix(*ts, 0).In(loc).Format("2006-01-02 15:04:05")
		},
		"datetime": func(t time.Time) string {
			return t.In(loc).Format("2006-01-02 15:04")
		},
		"category": func(status string) string {
			c, _ := stats.CategoryOf(status)
			return c
		},
		"describe": stats.StatusDescription,
		// pct scales n against peak for CSS bar widths.
		"pct": func(n, peak int64) string {
			if peak <= 0 {
				return "0%"
			}
			return fmt.Sprintf("%.1f%%", float64(n)/float64(peak)*100)
		},
		"join": strings.Join,
		"timeframeLabel": func(days int) string {
			if days == 0 {
				return "Today"
			}
			return fmt.Sprintf("Last %d days", days)
		},
	}
}

// NewRenderer parses all templates from the given filesystem.
// Each page template is combined with the base layout and all partials.
func NewRenderer(fsys fs.FS, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	r := &Renderer{
		templates: make(map[string]*template.Template),
	}
	funcs := Funcs(loc)

	partials, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		slog.Error("failed to glob partials", "error", err)
	}

	pages, err := fs.Glob(fsys, "*.html")
	if err != nil {
		slog.Error("failed to glob pages", "error", err)
		return r
	}

	for _, page := range pages {
		name := filepath.Base(page)
		if name == "base.html" {
			continue
		}

		files := []string{"base.html"}
		files = append(files, partials...)
		files = append(files, page)

		tmpl, err := template.New("").Funcs(funcs).ParseFS(fsys, files...)
		if err != nil {
			slog.Error("failed to parse template", "page", name, "error", err)
			continue
		}
		r.templates[name] = tmpl
	}

	return r
}

// Has reports whether the named page was parsed.
func (r *Renderer) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Render executes the named template with the given data.
// For HTMX partial requests (HX-Request header), it executes just the "content"
// block. For full page requests, it executes the "base" template.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, tmpl string, data map[string]interface{}) {
	t, ok := r.templates[tmpl]
	if !ok {
		slog.Error("template not found", "name", tmpl)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	data["Path"] = req.URL.Path

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	blockName := "base"
	if strings.ToLower(req.Header.Get("HX-Request")) == "true" {
		blockName = "content"
	}

	if err := t.ExecuteTemplate(w, blockName, data); err != nil {
		slog.Error("failed to execute template", "name", tmpl, "block", blockName, "error", err)
	}
}

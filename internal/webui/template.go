package webui

import (
	"fmt"
	"html/template"
	"sync"
)

type templator struct {
	cfg  *Config
	mu   sync.Mutex
	tmpl map[string]*template.Template
}

func newTemplator(cfg *Config) *templator {
	return &templator{
		cfg:  cfg,
		tmpl: make(map[string]*template.Template),
	}
}

func (t *templator) makeFuncs() template.FuncMap {
	return template.FuncMap{
		"asURL": func(s string) string {
			return t.cfg.prefix + s
		},
		"asStaticURL": func(s string) string {
			return t.cfg.prefix + s + "?" + t.cfg.ServerID
		},
	}
}

// Get returns the named page template, combined with the base layout.
func (t *templator) Get(name string) (*template.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tmpl, ok := t.tmpl[name]; ok {
		return tmpl, nil
	}
	files := []string{"template/base.html", fmt.Sprintf("template/%v.html", name)}
	tmpl, err := template.New("base").Funcs(t.makeFuncs()).ParseFS(templates, files...)
	if err != nil {
		return nil, fmt.Errorf("template %v parse: %w", name, err)
	}
	t.tmpl[name] = tmpl
	return tmpl, nil
}

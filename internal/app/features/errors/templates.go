package errors

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "errors",
		FS:       templatesFS,
		Patterns: []string{"templates/*.gohtml"},
	})
}

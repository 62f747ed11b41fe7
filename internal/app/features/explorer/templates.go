package explorer

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "explorer",
		FS:       templatesFS,
		Patterns: []string{"templates/*.gohtml"},
	})
}

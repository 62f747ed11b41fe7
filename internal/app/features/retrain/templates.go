package retrain

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "retrain",
		FS:       templatesFS,
		Patterns: []string{"templates/*.gohtml"},
	})
}

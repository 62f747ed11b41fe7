package rawdata

import (
	"embed"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "rawdata",
		FS:       templatesFS,
		Patterns: []string{"templates/*.gohtml"},
	})
}

// Package prompt builds the instruction sent to the language model.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"spi-dashboard/internal/modules/spi/query"
	"spi-dashboard/internal/modules/spi/types"
)

//go:embed prompt.tmpl
var promptTmpl string

var tmpl = template.Must(template.New("prompt").Parse(promptTmpl))

type data struct {
	Columns  []string
	Question string
	MaxLimit int
}

// Build returns the model instruction for question. The question is
// embedded verbatim.
func Build(question string) (string, error) {
	var b strings.Builder
	err := tmpl.Execute(&b, data{
		Columns:  types.Columns,
		Question: question,
		MaxLimit: query.MaxLimit,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

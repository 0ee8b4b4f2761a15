package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mvp-joe/codemorph/internal/errs"
)

// writeJSON writes v as one indented document.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

type errorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Op      string `json:"op,omitempty"`
	Path    string `json:"path,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

func errorDocument(err error) map[string]errorBody {
	body := errorBody{Message: err.Error()}
	var e *errs.Error
	if errors.As(err, &e) {
		body.Kind = string(e.Kind)
		body.Op = e.Op
		body.Path = e.Path
		body.Symbol = e.Symbol
		body.Rule = e.Rule
	}
	return map[string]errorBody{"error": body}
}

// formatNumber renders n with thousands separators.
func formatNumber(n int) string {
	if n < 1000 && n > -1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	sign := ""
	if str[0] == '-' {
		sign, str = "-", str[1:]
	}
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return sign + result
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

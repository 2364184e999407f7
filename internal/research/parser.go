package research

import (
	"encoding/json"
	"strings"
)

// StructuredResult is the outcome of extracting a data block from free-form
// model output: either a decoded object or the raw text with a diagnostic.
type StructuredResult struct {
	Data     map[string]interface{}
	Raw      string
	ParseErr string
}

// Structured reports whether a valid data block was extracted.
func (r StructuredResult) Structured() bool { return r.ParseErr == "" }

// ParseStructured extracts the single JSON object expected inside model
// output. Models routinely wrap the requested block in explanatory prose,
// so the span from the first opening brace to the last closing brace is
// tried as-is; rejecting on the first parse attempt would be too brittle.
// If the span is absent or does not parse (including when several blocks
// straddle the span and merge into garbage), the raw text is returned under
// an "unstructured" key with a diagnostic instead of an error.
func ParseStructured(text string) StructuredResult {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return fallbackResult(text, "no JSON object found in response")
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
		return fallbackResult(text, err.Error())
	}
	return StructuredResult{Data: data}
}

func fallbackResult(text, diag string) StructuredResult {
	return StructuredResult{
		Data:     map[string]interface{}{"unstructured": text},
		Raw:      text,
		ParseErr: diag,
	}
}

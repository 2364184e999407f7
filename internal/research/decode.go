package research

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Helpers for pulling typed values out of parsed generation payloads.
// Backends are loose about types (numbers as strings, single values where
// lists are expected), so every accessor tolerates the common drift.

func stringFrom(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return ""
	}
}

func floatFrom(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringSliceFrom(v interface{}) []string {
	switch items := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		return items
	case string:
		if items == "" {
			return nil
		}
		return []string{items}
	default:
		return nil
	}
}

func stringMapFrom(v interface{}) map[string]string {
	raw, ok := v.(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sourcesFrom(v interface{}) []ResearchSource {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]ResearchSource, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		src := ResearchSource{
			Title:   stringFrom(m["title"]),
			URL:     stringFrom(m["url"]),
			Content: stringFrom(m["content"]),
		}
		if cred, ok := floatFrom(m["credibility_score"]); ok {
			src.Credibility = ClampCredibility(cred)
		} else {
			src.Credibility = 0.5
		}
		if src.Title == "" && src.URL == "" {
			continue
		}
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sectionsFrom(v interface{}) []ResearchSection {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]ResearchSection, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		section := ResearchSection{
			Title:   stringFrom(m["title"]),
			Content: stringFrom(m["content"]),
			Sources: sourcesFrom(m["sources"]),
		}
		if conf, ok := floatFrom(m["confidence_score"]); ok {
			section.Confidence = conf
		} else {
			section.Confidence = 0.5
		}
		if section.Title == "" && section.Content == "" {
			continue
		}
		out = append(out, section)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

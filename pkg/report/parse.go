package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Text is a JSON scalar read as a string. Numbers and booleans keep their
// literal form; null and nested values read as empty.
type Text string

// UnmarshalJSON never fails on well-formed JSON
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case 'n', '{', '[':
		*t = ""
	default:
		*t = Text(data)
	}
	return nil
}

// String returns the text, mapping the literal "null" to empty
func (t Text) String() string {
	s := strings.TrimSpace(string(t))
	if s == "null" || s == "undefined" {
		return ""
	}
	return s
}

// Float parses the text as a number
func (t Text) Float() (float64, bool) {
	f, err := strconv.ParseFloat(t.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parseArray decodes a JSON array of objects. Empty, malformed and non-array
// input yield an empty slice; elements that are not objects are skipped.
func parseArray[T any](fragment string) []T {
	out := []T{}
	data := strings.TrimSpace(fragment)
	if data == "" || data == "null" {
		return out
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(data), &elems); err != nil {
		return out
	}

	for _, raw := range elems {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// parseWeb decodes a {citations, research} object. Citations that are not
// strings are dropped.
func parseWeb(fragment string) ([]string, string) {
	citations := []string{}
	data := strings.TrimSpace(fragment)
	if data == "" || data[0] != '{' {
		return citations, ""
	}

	var web struct {
		Citations []json.RawMessage `json:"citations"`
		Research  Text              `json:"research"`
	}
	if err := json.Unmarshal([]byte(data), &web); err != nil {
		return citations, ""
	}

	for _, raw := range web.Citations {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			citations = append(citations, s)
		}
	}
	return citations, web.Research.String()
}

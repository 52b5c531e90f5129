package converter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedBlock  = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	bracketArray = regexp.MustCompile(`\[[\s\S]*\]`)
)

// ParseResponse extracts the record objects from a model reply. The reply may
// be a JSON array, a fenced code block, an object wrapping the array under
// records or data, or prose around a bracketed array. Elements that are not
// objects are dropped.
func ParseResponse(content string) ([]map[string]interface{}, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response")
	}

	parsed, err := decodeJSON(content)
	if err != nil {
		if m := fencedBlock.FindStringSubmatch(content); m != nil && m[1] != "" {
			parsed, err = decodeJSON(m[1])
		} else if m := bracketArray.FindString(content); m != "" {
			parsed, err = decodeJSON(m)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	items, err := unwrapItems(parsed)
	if err != nil {
		return nil, err
	}

	records := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			records = append(records, obj)
		}
	}
	return records, nil
}

func unwrapItems(parsed interface{}) ([]interface{}, error) {
	switch v := parsed.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"records", "data"} {
			if arr, ok := v[key].([]interface{}); ok {
				return arr, nil
			}
		}
	}
	return nil, fmt.Errorf("unexpected response format: expected an array of records")
}

// decodeJSON decodes one JSON value, keeping numbers exact
func decodeJSON(s string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

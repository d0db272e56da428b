package model

import "encoding/json"

// AnswerValue is a submitted answer payload. On the wire and in the store it
// is a JSON array of strings; what the strings mean depends on the question
// kind: option IDs for select questions, right-column values in submitted
// order for match questions, and a single free-text response for text
// questions. Decoding happens only at the storage boundary.
type AnswerValue struct {
	Values []string
}

// Text returns the free-text response, or empty if none was given.
func (v AnswerValue) Text() string {
	if len(v.Values) == 0 {
		return ""
	}
	return v.Values[0]
}

// MarshalJSON encodes the value as a plain JSON string array.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Values)
}

// UnmarshalJSON decodes a JSON string array.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &v.Values)
}

// EncodeAnswerValue serializes a payload for storage. An empty payload is
// stored as "[]" so stored rows are always valid JSON.
func EncodeAnswerValue(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeAnswerValue parses a stored payload. Malformed or empty blobs decode
// to an empty value rather than an error; historic rows must never make a
// protocol unbuildable.
func DecodeAnswerValue(raw string) AnswerValue {
	var values []string
	if raw == "" {
		return AnswerValue{}
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return AnswerValue{}
	}
	return AnswerValue{Values: values}
}

// DecodeStringList parses a stored JSON string array column such as
// correct_option_key, match_prompts or match_answers.
func DecodeStringList(raw string) []string {
	var values []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// EncodeStringList serializes a string list column.
func EncodeStringList(values []string) string {
	return EncodeAnswerValue(values)
}

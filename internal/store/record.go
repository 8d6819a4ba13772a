package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Record is one JSON object in a collection. It always carries a string "id".
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns the field as a string, or "" when absent or of another type.
func (r Record) String(field string) string {
	value, _ := r[field].(string)
	return value
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

func decodeRecords(data []byte) ([]Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var records []Record
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	for i, record := range records {
		if record == nil {
			return nil, fmt.Errorf("decode collection: element %d is not an object", i)
		}
	}
	return records, nil
}

func encodeJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// layout is the element text of a previously stored collection. Records that
// still decode to the same value are written back with their original text,
// which keeps key order and number formatting of untouched records.
type layout struct {
	elements []json.RawMessage
	byID     map[string]json.RawMessage
}

func readLayout(data []byte) layout {
	var elements []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &elements) != nil {
		return layout{}
	}
	l := layout{elements: elements, byID: make(map[string]json.RawMessage, len(elements))}
	for _, element := range elements {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(element, &head) != nil || head.ID == "" {
			continue
		}
		if _, seen := l.byID[head.ID]; !seen {
			l.byID[head.ID] = element
		}
	}
	return l
}

// unchanged reports whether records are exactly what the layout holds, in
// the same order.
func (l layout) unchanged(records []Record) bool {
	if l.elements == nil || len(l.elements) != len(records) {
		return false
	}
	for i, record := range records {
		if !sameRecord(l.elements[i], record) {
			return false
		}
	}
	return true
}

func sameRecord(raw json.RawMessage, record Record) bool {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var decoded Record
	if err := decoder.Decode(&decoded); err != nil {
		return false
	}
	return reflect.DeepEqual(decoded, record)
}

// encodeRecords renders records as a two-space indented array without a
// trailing newline. Records found unchanged in previous keep their text.
func encodeRecords(records []Record, previous layout) ([]byte, error) {
	if len(records) == 0 {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, record := range records {
		if i > 0 {
			buf.WriteString(",\n")
		}
		raw, ok := previous.byID[record.ID()]
		if !ok || !sameRecord(raw, record) {
			encoded, err := marshalRecord(record)
			if err != nil {
				return nil, fmt.Errorf("encode collection: %w", err)
			}
			raw = encoded
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, fmt.Errorf("encode collection: %w", err)
		}
		buf.WriteString("  ")
		if err := json.Indent(&buf, compact.Bytes(), "  ", "  "); err != nil {
			return nil, fmt.Errorf("encode collection: %w", err)
		}
	}
	buf.WriteString("\n]")
	return buf.Bytes(), nil
}

func marshalRecord(record Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(record); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// ToRecord converts any JSON-marshalable value into a Record.
func ToRecord(value any) (Record, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var record Record
	if err := decoder.Decode(&record); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}
	return record, nil
}

// FromRecord decodes a Record into target.
func FromRecord(record Record, target any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Field names used by the persisted layout.
const (
	FieldID          = "id"
	FieldSubjectName = "subjectName"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldReason      = "reason"
	FieldNotes       = "notes"
	FieldCompleted   = "completed"

	legacyFieldSubjectName = "patientName"
)

var errNotObject = errors.New("record: appointment must be a JSON object")

// Encode renders records as an indented JSON array.
func Encode(records []Appointment) ([]byte, error) {
	if records == nil {
		records = []Appointment{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode appointments: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of records. Empty input and a JSON null yield an
// empty set.
func Decode(data []byte) ([]Appointment, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Appointment{}, nil
	}

	var records []Appointment
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	if records == nil {
		records = []Appointment{}
	}
	return records, nil
}

// MarshalJSON writes the known fields in a fixed order followed by any
// preserved extension fields sorted by key. A known field decoded from a
// value of the wrong type is written back as stored while it is unchanged.
func (a Appointment) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	write := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		return writeRaw(&buf, &first, key, raw)
	}
	writeText := func(key, value string) error {
		if raw, ok := a.original[key]; ok {
			if stored, _ := decodeText(raw); stored == value {
				return writeRaw(&buf, &first, key, raw)
			}
		}
		return write(key, value)
	}

	if err := writeText(FieldID, a.ID); err != nil {
		return nil, err
	}
	if err := writeText(FieldSubjectName, a.SubjectName); err != nil {
		return nil, err
	}
	if err := writeText(FieldDate, a.Date); err != nil {
		return nil, err
	}
	if err := writeText(FieldTime, a.Time); err != nil {
		return nil, err
	}
	if err := writeText(FieldReason, a.Reason); err != nil {
		return nil, err
	}
	if a.Notes != nil {
		if err := writeText(FieldNotes, *a.Notes); err != nil {
			return nil, err
		}
	}
	if raw, ok := a.original[FieldCompleted]; ok && !a.Completed {
		if err := writeRaw(&buf, &first, FieldCompleted, raw); err != nil {
			return nil, err
		}
	} else if err := write(FieldCompleted, a.Completed); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(a.Extensions))
	for key := range a.Extensions {
		if isKnownField(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		raw := a.Extensions[key]
		if !json.Valid(raw) {
			return nil, fmt.Errorf("field %s: invalid preserved JSON", key)
		}
		if err := writeRaw(&buf, &first, key, raw); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the persisted layout, the legacy patientName key and
// numeric ids. Unknown keys are kept in Extensions.
//
// Known fields never fail the decode. A text field holding another JSON type
// takes that value's compact JSON text, so a record with a numeric time is
// kept and later flagged as malformed. A non-boolean completed reads as false.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", errNotObject, err)
	}
	if fields == nil {
		return errNotObject
	}

	var out Appointment
	keep := func(key string, raw json.RawMessage) {
		if out.original == nil {
			out.original = make(map[string]json.RawMessage)
		}
		out.original[key] = append(json.RawMessage(nil), raw...)
	}
	text := func(key string, raw json.RawMessage) string {
		value, exact := decodeText(raw)
		if !exact {
			keep(key, raw)
		}
		return value
	}

	for key, raw := range fields {
		switch key {
		case FieldID:
			out.ID = text(key, raw)
		case FieldSubjectName:
			out.SubjectName = text(key, raw)
		case FieldDate:
			out.Date = text(key, raw)
		case FieldTime:
			out.Time = text(key, raw)
		case FieldReason:
			out.Reason = text(key, raw)
		case FieldNotes:
			if !isNull(raw) {
				notes := text(key, raw)
				out.Notes = &notes
			}
		case FieldCompleted:
			var completed bool
			if err := json.Unmarshal(raw, &completed); err != nil {
				keep(key, raw)
			}
			out.Completed = completed
		case legacyFieldSubjectName:
		default:
			if out.Extensions == nil {
				out.Extensions = make(map[string]json.RawMessage)
			}
			out.Extensions[key] = append(json.RawMessage(nil), raw...)
		}
	}

	if legacy, ok := fields[legacyFieldSubjectName]; ok {
		if _, hasCurrent := fields[FieldSubjectName]; hasCurrent {
			if out.Extensions == nil {
				out.Extensions = make(map[string]json.RawMessage)
			}
			out.Extensions[legacyFieldSubjectName] = append(json.RawMessage(nil), legacy...)
		} else {
			out.SubjectName = text(FieldSubjectName, legacy)
		}
	}

	*a = out
	return nil
}

func writeRaw(buf *bytes.Buffer, first *bool, key string, raw []byte) error {
	name, err := json.Marshal(key)
	if err != nil {
		return err
	}
	if !*first {
		buf.WriteByte(',')
	}
	*first = false
	buf.Write(name)
	buf.WriteByte(':')
	buf.Write(raw)
	return nil
}

func isKnownField(key string) bool {
	switch key {
	case FieldID, FieldSubjectName, FieldDate, FieldTime, FieldReason, FieldNotes, FieldCompleted:
		return true
	}
	return false
}

// decodeText reads a known text field. Strings are read as is; any other
// value yields its compact JSON text and exact is false.
func decodeText(raw json.RawMessage) (value string, exact bool) {
	if isNull(raw) {
		return "", true
	}
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(bytes.TrimSpace(raw)), false
	}
	return compact.String(), false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

package docstore

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Metadata field names. They are addressable in filters and ordering like data fields.
const (
	FieldID         = "$id"
	FieldCollection = "$collection"
	FieldCreatedAt  = "$createdAt"
	FieldUpdatedAt  = "$updatedAt"
)

// TimeLayout is the fixed-width timestamp layout used inside documents, so string order
// matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC with TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Document is one stored record. Data holds the user fields; metadata lives in the struct.
type Document struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Data       map[string]any
}

// String returns a string field or "" when absent or not a string.
func (d Document) String(key string) string {
	s, _ := d.Data[key].(string)
	return s
}

// Strings returns a string-list field. Lists decoded from JSON arrive as []any.
func (d Document) Strings(key string) []string {
	switch v := d.Data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Time returns a timestamp field stored either as time.Time or an RFC 3339 string.
func (d Document) Time(key string) time.Time {
	switch v := d.Data[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Clone returns a deep copy safe to mutate.
func (d Document) Clone() Document {
	cp := d
	cp.Data = cloneData(d.Data)
	return cp
}

// MarshalJSON flattens metadata and data into one object, metadata keys prefixed with "$".
func (d Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Data)+4)
	maps.Copy(m, d.Data)
	m[FieldID] = d.ID
	m[FieldCollection] = d.Collection
	m[FieldCreatedAt] = FormatTime(d.CreatedAt)
	m[FieldUpdatedAt] = FormatTime(d.UpdatedAt)
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON.
func (d *Document) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := Document{Data: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case FieldID:
			out.ID, _ = v.(string)
		case FieldCollection:
			out.Collection, _ = v.(string)
		case FieldCreatedAt:
			out.CreatedAt = parseMetaTime(v)
		case FieldUpdatedAt:
			out.UpdatedAt = parseMetaTime(v)
		default:
			out.Data[k] = v
		}
	}
	*d = out
	return nil
}

func parseMetaTime(v any) time.Time {
	s, _ := v.(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// field resolves a metadata or data field for filtering and ordering.
func (d Document) field(name string) any {
	switch name {
	case FieldID:
		return d.ID
	case FieldCollection:
		return d.Collection
	case FieldCreatedAt:
		return d.CreatedAt
	case FieldUpdatedAt:
		return d.UpdatedAt
	default:
		return d.Data[name]
	}
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case map[string]any:
		return cloneData(t)
	default:
		return v
	}
}

// scalarKey renders a scalar value the way Postgres ->> would, so both stores compare alike.
func scalarKey(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		return FormatTime(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

package doc

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Envelope keys. Payload fields using any of these names are dropped on write.
const (
	KeyID        = "_id"
	KeyRev       = "_rev"
	KeyDeleted   = "_deleted"
	KeyDirtyAt   = "dirtyAt"
	KeyDirtyBy   = "dirtyBy"
	KeyCreatedAt = "createdAt"
	KeyCreatedBy = "createdBy"
	KeyUpdatedAt = "updatedAt"
	KeyUpdatedBy = "updatedBy"
	KeyDeletedAt = "deletedAt"
	KeyDeletedBy = "deletedBy"
)

// TimeLayout renders envelope timestamps. The fraction has a fixed width
// so timestamps order correctly as strings.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var reservedKeys = map[string]bool{
	KeyID: true, KeyRev: true, KeyDeleted: true,
	KeyDirtyAt: true, KeyDirtyBy: true,
	KeyCreatedAt: true, KeyCreatedBy: true,
	KeyUpdatedAt: true, KeyUpdatedBy: true,
	KeyDeletedAt: true, KeyDeletedBy: true,
}

// IsReserved reports whether key is an envelope key.
func IsReserved(key string) bool {
	return reservedKeys[key]
}

// Document is a stored document: envelope plus payload.
//
// Zero times and nil actors mean "not set" and are omitted from JSON.
// Seq is the local commit sequence assigned by the store that returned the
// document; it is never serialized.
type Document struct {
	ID      string
	Rev     string
	Deleted bool
	Seq     int64

	DirtyAt   time.Time
	DirtyBy   *Actor
	CreatedAt time.Time
	CreatedBy *Actor
	UpdatedAt time.Time
	UpdatedBy *Actor
	DeletedAt time.Time
	DeletedBy *Actor

	Fields map[string]any
}

// IsLive reports whether the document belongs in queries and projections:
// neither physically deleted nor tombstoned with deletedAt.
func (d Document) IsLive() bool {
	return !d.Deleted && d.DeletedAt.IsZero()
}

// Get returns a payload field.
func (d Document) Get(key string) (any, bool) {
	v, ok := d.Fields[key]
	return v, ok
}

// Clone returns a copy whose Fields map and actors can be mutated
// without affecting d. Nested payload values are shared.
func (d Document) Clone() Document {
	c := d
	c.Fields = maps.Clone(d.Fields)
	c.DirtyBy = d.DirtyBy.clone()
	c.CreatedBy = d.CreatedBy.clone()
	c.UpdatedBy = d.UpdatedBy.clone()
	c.DeletedBy = d.DeletedBy.clone()
	return c
}

// WithPayload returns a copy of d whose payload is replaced by payload,
// minus any envelope keys.
func (d Document) WithPayload(payload map[string]any) Document {
	c := d.Clone()
	c.Fields = StripReserved(payload)
	return c
}

// StripReserved copies m without envelope keys. Never returns nil.
func StripReserved(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if reservedKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Map flattens the document into a single map, envelope keys included.
// Used as the evaluation environment for filter expressions.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d.Fields)+11)
	maps.Copy(m, d.Fields)
	m[KeyID] = d.ID
	if d.Rev != "" {
		m[KeyRev] = d.Rev
	}
	if d.Deleted {
		m[KeyDeleted] = true
	}
	putTime(m, KeyDirtyAt, d.DirtyAt)
	putActor(m, KeyDirtyBy, d.DirtyBy)
	putTime(m, KeyCreatedAt, d.CreatedAt)
	putActor(m, KeyCreatedBy, d.CreatedBy)
	putTime(m, KeyUpdatedAt, d.UpdatedAt)
	putActor(m, KeyUpdatedBy, d.UpdatedBy)
	putTime(m, KeyDeletedAt, d.DeletedAt)
	putActor(m, KeyDeletedBy, d.DeletedBy)
	return m
}

func putTime(m map[string]any, key string, t time.Time) {
	if !t.IsZero() {
		m[key] = t.UTC().Format(TimeLayout)
	}
}

func putActor(m map[string]any, key string, a *Actor) {
	if a != nil {
		m[key] = a.Map()
	}
}

// MarshalJSON writes the flat document object.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// UnmarshalJSON reads a flat document object. Unknown keys become payload.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	out := Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		var err error
		switch k {
		case KeyID:
			err = json.Unmarshal(v, &out.ID)
		case KeyRev:
			err = json.Unmarshal(v, &out.Rev)
		case KeyDeleted:
			err = json.Unmarshal(v, &out.Deleted)
		case KeyDirtyAt:
			out.DirtyAt, err = decodeTime(v)
		case KeyDirtyBy:
			out.DirtyBy, err = decodeActor(v)
		case KeyCreatedAt:
			out.CreatedAt, err = decodeTime(v)
		case KeyCreatedBy:
			out.CreatedBy, err = decodeActor(v)
		case KeyUpdatedAt:
			out.UpdatedAt, err = decodeTime(v)
		case KeyUpdatedBy:
			out.UpdatedBy, err = decodeActor(v)
		case KeyDeletedAt:
			out.DeletedAt, err = decodeTime(v)
		case KeyDeletedBy:
			out.DeletedBy, err = decodeActor(v)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			out.Fields[k] = val
		}
		if err != nil {
			return fmt.Errorf("decode document field %q: %w", k, err)
		}
	}

	*d = out
	return nil
}

func decodeTime(raw json.RawMessage) (time.Time, error) {
	if string(raw) == "null" {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decodeActor(raw json.RawMessage) (*Actor, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var a Actor
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

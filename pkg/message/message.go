package message

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Kind distinguishes Events from Reports.
type Kind string

const (
	KindEvent  Kind = "Event"
	KindReport Kind = "Report"
)

const typeKey = "__type"

// Message is a validated set of harmonized key/value pairs.
type Message struct {
	kind   Kind
	fields map[string]any
}

// New returns an empty message of the given kind.
func New(kind Kind) *Message {
	return &Message{kind: kind, fields: make(map[string]any)}
}

// Kind returns the message kind.
func (m *Message) Kind() Kind { return m.kind }

// Len returns the number of keys.
func (m *Message) Len() int { return len(m.fields) }

// Get returns the value stored for key.
func (m *Message) Get(key string) (any, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// Add validates and stores value under key. It fails with ErrKeyExists
// when the key is already set.
func (m *Message) Add(key string, value any) error {
	if _, ok := m.fields[key]; ok {
		return &FieldError{Key: key, Err: ErrKeyExists}
	}
	return m.Set(key, value)
}

// Set validates and stores value under key, replacing any previous value.
func (m *Message) Set(key string, value any) error {
	typ, ok := TypeOf(m.kind, key)
	if !ok {
		return &FieldError{Key: key, Reason: "not harmonized for " + string(m.kind), Err: ErrInvalidKey}
	}
	clean, reason, ok := sanitize(typ, value)
	if !ok {
		return &FieldError{Key: key, Reason: reason, Err: ErrTypeMismatch}
	}
	m.fields[key] = clean
	return nil
}

// Keys returns the keys in lexical order.
func (m *Message) Keys() []string {
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap returns a copy of the fields including "__type".
func (m *Message) ToMap() map[string]any {
	out := make(map[string]any, len(m.fields)+1)
	for k, v := range m.fields {
		out[k] = v
	}
	out[typeKey] = string(m.kind)
	return out
}

// Clone returns a deep-enough copy for independent mutation of keys.
func (m *Message) Clone() *Message {
	c := New(m.kind)
	for k, v := range m.fields {
		c.fields[k] = v
	}
	return c
}

// Serialize encodes the message as a JSON object with sorted keys.
func (m *Message) Serialize() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	return m.Serialize()
}

// Hash returns a hex BLAKE3 digest over the message's keys and values,
// skipping the keys listed in ignore.
func (m *Message) Hash(ignore ...string) string {
	skip := make(map[string]bool, len(ignore))
	for _, k := range ignore {
		skip[k] = true
	}
	h := blake3.New()
	for _, k := range m.Keys() {
		if skip[k] {
			continue
		}
		v, _ := json.Marshal(m.fields[k])
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(v)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Unserialize decodes a JSON object into a Message. When the object has no
// "__type" member defaultKind is used; an empty defaultKind makes "__type"
// mandatory.
func Unserialize(raw []byte, defaultKind Kind) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrSyntax)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", ErrSyntax, jsonKind(doc))
	}

	kind := defaultKind
	if t, ok := obj[typeKey]; ok {
		s, _ := t.(string)
		switch Kind(s) {
		case KindEvent, KindReport:
			kind = Kind(s)
		default:
			return nil, &FieldError{Key: typeKey, Reason: "expected Event or Report", Err: ErrUnknownKind}
		}
		delete(obj, typeKey)
	}
	if kind == "" {
		return nil, &FieldError{Key: typeKey, Err: ErrMissingField}
	}

	flat := make(map[string]any, len(obj))
	if err := flatten("", obj, flat); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := New(kind)
	for _, k := range keys {
		if err := m.Add(k, flat[k]); err != nil {
			return nil, err
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks kind-level constraints that single keys cannot express.
func (m *Message) Validate() error {
	if m.kind == KindReport {
		if _, ok := m.fields["raw"]; !ok {
			return &FieldError{Key: "raw", Reason: "reports carry the raw feed data", Err: ErrMissingField}
		}
	}
	return nil
}

// flatten turns nested objects into dotted keys. Objects below an "extra."
// key are kept as values.
func flatten(prefix string, obj map[string]any, out map[string]any) error {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		nested, isObj := v.(map[string]any)
		if isObj && !strings.HasPrefix(key, extraPrefix) {
			if err := flatten(key, nested, out); err != nil {
				return err
			}
			continue
		}
		if _, dup := out[key]; dup {
			return &FieldError{Key: key, Reason: "given both nested and dotted", Err: ErrKeyExists}
		}
		out[key] = v
	}
	return nil
}

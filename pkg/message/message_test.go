package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnserialize_DefaultsToEvent(t *testing.T) {
	m, err := Unserialize([]byte(`{"feed.name":"test","raw":"RGVtbw=="}`), KindEvent)
	require.NoError(t, err)

	assert.Equal(t, KindEvent, m.Kind())
	assert.Equal(t, []string{"feed.name", "raw"}, m.Keys())
	v, ok := m.Get("raw")
	require.True(t, ok)
	assert.Equal(t, "RGVtbw==", v)
}

func TestUnserialize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		wantErr error
	}{
		{"not json", `not-json`, KindEvent, ErrSyntax},
		{"array", `[1,2]`, KindEvent, ErrSyntax},
		{"trailing data", `{"feed.name":"a"} {}`, KindEvent, ErrSyntax},
		{"unknown key", `{"feed.nmae":"a"}`, KindEvent, ErrInvalidKey},
		{"number for string", `{"feed.name":5}`, KindEvent, ErrTypeMismatch},
		{"bad base64", `{"raw":"%%%"}`, KindEvent, ErrTypeMismatch},
		{"fractional port", `{"source.port":80.5}`, KindEvent, ErrTypeMismatch},
		{"integer out of range", `{"source.asn":1e30}`, KindEvent, ErrTypeMismatch},
		{"integer overflows int64", `{"source.asn":9223372036854775808}`, KindEvent, ErrTypeMismatch},
		{"key nested and dotted", `{"source":{"ip":"1.1.1.1"},"source.ip":"2.2.2.2"}`, KindEvent, ErrKeyExists},
		{"bad ip", `{"source.ip":"300.1.1.1"}`, KindEvent, ErrTypeMismatch},
		{"missing type", `{"feed.name":"a"}`, "", ErrMissingField},
		{"unknown type", `{"__type":"Alert"}`, KindEvent, ErrUnknownKind},
		{"report without raw", `{"__type":"Report","feed.name":"a"}`, KindEvent, ErrMissingField},
		{"event key on report", `{"__type":"Report","raw":"","source.ip":"1.2.3.4"}`, KindEvent, ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Unserialize([]byte(tt.raw), tt.kind)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestUnserialize_LargeIntegersKeepPrecision(t *testing.T) {
	m, err := Unserialize([]byte(`{"source.port":9007199254740993,"destination.asn":1e3}`), KindEvent)
	require.NoError(t, err)

	port, _ := m.Get("source.port")
	assert.Equal(t, int64(9007199254740993), port)
	asn, _ := m.Get("destination.asn")
	assert.Equal(t, int64(1000), asn)

	data, err := m.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source.port":9007199254740993`)
}

func TestUnserialize_FlattensNestedObjects(t *testing.T) {
	m, err := Unserialize([]byte(`{
		"__type": "Event",
		"feed": {"name": "nested"},
		"source": {"ip": "192.0.2.1", "port": 443},
		"extra": {"tags": ["a", "b"], "meta": {"depth": 2}}
	}`), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"extra.meta", "extra.tags", "feed.name", "source.ip", "source.port"}, m.Keys())
	port, _ := m.Get("source.port")
	assert.Equal(t, int64(443), port)
	meta, _ := m.Get("extra.meta")
	assert.IsType(t, map[string]any{}, meta)
}

func TestMessage_SetCanonicalizes(t *testing.T) {
	m := New(KindEvent)
	require.NoError(t, m.Set("source.fqdn", "Example.COM."))
	require.NoError(t, m.Set("time.source", "2024-05-01T12:00:00+02:00"))
	require.NoError(t, m.Set("source.port", 8080))

	fqdn, _ := m.Get("source.fqdn")
	assert.Equal(t, "example.com", fqdn)
	ts, _ := m.Get("time.source")
	assert.Equal(t, "2024-05-01T10:00:00Z", ts)

	err := m.Add("source.port", 22)
	assert.ErrorIs(t, err, ErrKeyExists)
}

func TestMessage_SerializeIncludesType(t *testing.T) {
	m := New(KindReport)
	require.NoError(t, m.Set("raw", "RGVtbw=="))
	require.NoError(t, m.Set("feed.name", "test"))

	out, err := m.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, `{"__type":"Report","feed.name":"test","raw":"RGVtbw=="}`, string(out))

	back, err := Unserialize(out, "")
	require.NoError(t, err)
	assert.Equal(t, m.ToMap(), back.ToMap())
}

func TestMessage_Hash(t *testing.T) {
	a := New(KindEvent)
	require.NoError(t, a.Set("feed.name", "x"))
	require.NoError(t, a.Set("time.observation", "2024-01-01T00:00:00Z"))

	b := a.Clone()
	require.NoError(t, b.Set("time.observation", "2024-02-01T00:00:00Z"))

	assert.Len(t, a.Hash(), 64)
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Hash("time.observation"), b.Hash("time.observation"))
}

func TestFieldError_Message(t *testing.T) {
	_, err := Unserialize([]byte(`{"feed.name":true}`), KindEvent)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "feed.name", fe.Key)
	assert.Contains(t, err.Error(), "expected string, got boolean")

	var syntax *json.SyntaxError
	_, err = Unserialize([]byte(`{`), KindEvent)
	assert.False(t, errors.As(err, &syntax))
	assert.ErrorIs(t, err, ErrSyntax)
}

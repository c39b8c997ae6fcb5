package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// FieldType is the harmonized type of a message key.
type FieldType int

const (
	TypeString FieldType = iota
	TypeBase64
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeIPAddress
	TypeFQDN
	TypeURL
	TypeDateTime
	TypeAny
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeBase64:
		return "Base64"
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeBoolean:
		return "Boolean"
	case TypeIPAddress:
		return "IPAddress"
	case TypeFQDN:
		return "FQDN"
	case TypeURL:
		return "URL"
	case TypeDateTime:
		return "DateTime"
	default:
		return "Any"
	}
}

type fieldSpec struct {
	typ    FieldType
	report bool // also allowed on Report messages
}

const extraPrefix = "extra."

var harmonization = map[string]fieldSpec{
	"feed.accuracy":             {TypeFloat, true},
	"feed.code":                 {TypeString, true},
	"feed.documentation":        {TypeString, true},
	"feed.name":                 {TypeString, true},
	"feed.provider":             {TypeString, true},
	"feed.url":                  {TypeURL, true},
	"raw":                       {TypeBase64, true},
	"time.observation":          {TypeDateTime, true},
	"time.source":               {TypeDateTime, false},
	"classification.identifier": {TypeString, false},
	"classification.taxonomy":   {TypeString, false},
	"classification.type":       {TypeString, false},
	"comment":                   {TypeString, false},
	"event_description.text":    {TypeString, false},
	"malware.name":              {TypeString, false},
	"protocol.application":      {TypeString, false},
	"protocol.transport":        {TypeString, false},
	"source.asn":                {TypeInteger, false},
	"source.fqdn":               {TypeFQDN, false},
	"source.ip":                 {TypeIPAddress, false},
	"source.port":               {TypeInteger, false},
	"source.url":                {TypeURL, false},
	"destination.asn":           {TypeInteger, false},
	"destination.fqdn":          {TypeFQDN, false},
	"destination.ip":            {TypeIPAddress, false},
	"destination.port":          {TypeInteger, false},
	"destination.url":           {TypeURL, false},
	"status":                    {TypeString, false},
}

// TypeOf returns the harmonized type of key for the given kind.
func TypeOf(kind Kind, key string) (FieldType, bool) {
	if strings.HasPrefix(key, extraPrefix) && len(key) > len(extraPrefix) {
		return TypeAny, true
	}
	spec, ok := harmonization[key]
	if !ok {
		return 0, false
	}
	if kind == KindReport && !spec.report {
		return 0, false
	}
	return spec.typ, true
}

// sanitize checks value against typ and returns its canonical form.
func sanitize(typ FieldType, value any) (any, string, bool) {
	switch typ {
	case TypeAny:
		return value, "", true
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected string, got %s", jsonKind(value)), false
		}
		if s == "" {
			return nil, "empty string", false
		}
		return s, "", true
	case TypeBase64:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected base64 string, got %s", jsonKind(value)), false
		}
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return nil, "invalid base64", false
		}
		return s, "", true
	case TypeInteger:
		n, ok := toInt(value)
		if !ok {
			return nil, fmt.Sprintf("expected 64-bit integer, got %s", jsonKind(value)), false
		}
		return n, "", true
	case TypeFloat:
		n, ok := toFloat(value)
		if !ok {
			return nil, fmt.Sprintf("expected number, got %s", jsonKind(value)), false
		}
		return n, "", true
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Sprintf("expected boolean, got %s", jsonKind(value)), false
		}
		return b, "", true
	case TypeIPAddress:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected IP address string, got %s", jsonKind(value)), false
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, "invalid IP address", false
		}
		return addr.String(), "", true
	case TypeFQDN:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected hostname string, got %s", jsonKind(value)), false
		}
		s = strings.ToLower(strings.TrimSuffix(s, "."))
		if s == "" || strings.ContainsAny(s, " /:@") {
			return nil, "invalid hostname", false
		}
		if _, err := netip.ParseAddr(s); err == nil {
			return nil, "IP address is not a hostname", false
		}
		return s, "", true
	case TypeURL:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected URL string, got %s", jsonKind(value)), false
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, "invalid URL", false
		}
		return s, "", true
	case TypeDateTime:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected timestamp string, got %s", jsonKind(value)), false
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, "invalid RFC 3339 timestamp", false
		}
		return ts.UTC().Format(time.RFC3339Nano), "", true
	}
	return nil, "unsupported type", false
}

// toInt converts value to int64 without loss. Numbers outside the int64
// range or with a fractional part are rejected.
func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -9.223372036854775808e18 || f >= 9.223372036854775808e18 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func jsonKind(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

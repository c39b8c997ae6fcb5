// Package message defines the Message entity exchanged between units.
//
// A Message is a flat set of harmonized keys ("feed.name", "source.ip",
// "raw", ...) tagged with a kind, Event or Report. Values are validated
// against the harmonization table when they are added, so a Message that
// exists is always well-formed.
//
// On the wire a Message is a JSON object with an extra "__type" member:
//
//	{"__type": "Event", "feed.name": "test", "raw": "RGVtbw=="}
//
// [Unserialize] also accepts nested objects and flattens them into dotted
// keys, so {"feed": {"name": "test"}} is equivalent to {"feed.name": "test"}.
package message

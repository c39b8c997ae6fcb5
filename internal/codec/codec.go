// Package codec converts between operator-supplied text and messages. It
// is shared by the message subcommand and the interactive consoles.
package codec

import (
	"errors"

	"github.com/tidwall/jsonc"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/message"
)

// Decode turns operator-supplied text into a message. Comments and
// trailing commas are tolerated; a payload without "__type" is an event.
// Failures are returned as *domain.DecodeError.
func Decode(text string) (*message.Message, error) {
	msg, err := message.Unserialize(jsonc.ToJSON([]byte(text)), message.KindEvent)
	if err != nil {
		return nil, &domain.DecodeError{Cause: decodeCause(err), Err: err}
	}
	return msg, nil
}

// Encode is the inverse of Decode.
func Encode(msg *message.Message) (string, error) {
	data, err := msg.Serialize()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCause(err error) string {
	switch {
	case errors.Is(err, message.ErrSyntax):
		return "syntax error"
	case errors.Is(err, message.ErrTypeMismatch), errors.Is(err, message.ErrUnknownKind):
		return "type mismatch"
	case errors.Is(err, message.ErrMissingField):
		return "missing field"
	default:
		return "invalid key"
	}
}

package jsonutil

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/prebid/prebid-server-admaru/errortypes"
)

var jsonConfigValidationOn = jsoniter.ConfigCompatibleWithStandardLibrary

var jsonConfigValidationOff = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: false,
}.Froze()

// Unmarshal unmarshals a byte slice into the specified data structure without
// validating embedded raw messages.
func Unmarshal(data []byte, v interface{}) error {
	if err := jsonConfigValidationOff.Unmarshal(data, v); err != nil {
		return &errortypes.FailedToUnmarshal{
			Message: tryExtractErrorMessage(err),
		}
	}
	return nil
}

// UnmarshalValid validates and unmarshals a byte slice into the specified data structure.
func UnmarshalValid(data []byte, v interface{}) error {
	if err := jsonConfigValidationOn.Unmarshal(data, v); err != nil {
		return &errortypes.FailedToUnmarshal{
			Message: tryExtractErrorMessage(err),
		}
	}
	return nil
}

// Marshal marshals a data structure into a byte slice. Embedded raw messages which are
// not valid JSON are written as null.
func Marshal(v interface{}) ([]byte, error) {
	data, err := jsonConfigValidationOn.Marshal(v)
	if err != nil {
		return nil, &errortypes.FailedToMarshal{
			Message: err.Error(),
		}
	}
	return data, nil
}

const errorContextMarker = ", error found in #"

// tryExtractErrorMessage strips the operation prefixes and the byte context which
// jsoniter adds to its errors, which would otherwise leak payload fragments into
// user facing messages. For example:
//
//	admaru.bidResponse.ReadObjectCB: expect { or n, but found i, error found in #1 byte of ...|invalid|...
//
// becomes "expect { or n, but found i".
func tryExtractErrorMessage(err error) string {
	msg := err.Error()

	msgEndIndex := strings.LastIndex(msg, errorContextMarker)
	if msgEndIndex == -1 {
		return msg
	}

	msgStartIndex := 0
	for {
		next := strings.Index(msg[msgStartIndex:msgEndIndex], ": ")
		if next == -1 {
			break
		}

		// operation names never contain a space; anything else is the message itself
		if strings.Contains(msg[msgStartIndex:msgStartIndex+next], " ") {
			break
		}
		msgStartIndex += next + 2
	}

	return msg[msgStartIndex:msgEndIndex]
}

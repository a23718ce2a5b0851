package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWarning(t *testing.T) {
	testCases := []struct {
		description string
		err         error
		expected    bool
	}{
		{description: "generic error", err: errors.New("some error"), expected: false},
		{description: "bad input", err: &BadInput{Message: "no tagid"}, expected: false},
		{description: "bad server response", err: &BadServerResponse{Message: "bad body"}, expected: false},
		{description: "warning", err: &Warning{Message: "unsupported media type"}, expected: true},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, IsWarning(test.err), test.description)
	}
}

func TestContainsFatalError(t *testing.T) {
	warning := &Warning{Message: "warning"}
	fatal := &BadServerResponse{Message: "fatal"}
	unknown := errors.New("unknown")

	assert.False(t, ContainsFatalError(nil), "nil")
	assert.False(t, ContainsFatalError([]error{warning}), "warning only")
	assert.True(t, ContainsFatalError([]error{warning, fatal}), "warning and fatal")
	assert.True(t, ContainsFatalError([]error{unknown}), "errors without severity are fatal")
}

func TestFatalOnlyAndWarningOnly(t *testing.T) {
	warning := &Warning{Message: "warning"}
	badInput := &BadInput{Message: "bad input"}
	unknown := errors.New("unknown")
	errs := []error{warning, badInput, unknown}

	assert.Equal(t, []error{badInput, unknown}, FatalOnly(errs))
	assert.Equal(t, []error{warning}, WarningOnly(errs))
}

func TestReadCode(t *testing.T) {
	assert.Equal(t, BadInputErrorCode, ReadCode(&BadInput{}))
	assert.Equal(t, BadServerResponseErrorCode, ReadCode(&BadServerResponse{}))
	assert.Equal(t, TimeoutErrorCode, ReadCode(&Timeout{}))
	assert.Equal(t, UnsupportedMediaTypeWarningCode, ReadCode(&Warning{WarningCode: UnsupportedMediaTypeWarningCode}))
	assert.Equal(t, UnknownErrorCode, ReadCode(errors.New("plain")))
}

func TestAggregateErrors(t *testing.T) {
	assert.Equal(t, "", NewAggregateErrors("validation errors", nil).Error())

	one := NewAggregateErrors("validation errors", []error{errors.New("bad port")})
	assert.Equal(t, "validation errors (1 error):\n  1: bad port\n", one.Error())

	two := NewAggregateErrors("validation errors", []error{errors.New("bad port"), errors.New("bad endpoint")})
	assert.Equal(t, "validation errors (2 errors):\n  1: bad port\n  2: bad endpoint\n", two.Error())
}

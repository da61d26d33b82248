package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeRoundTrip(t *testing.T) {
	err := New(CodeEngineResolveNotFound, "no such node", FieldNodeID("n1"))
	require.Error(t, err)

	assert.Equal(t, CodeEngineResolveNotFound, CodeOf(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsInvalidInput(err))
	assert.Equal(t, "n1", FieldsOf(err)["node_id"])
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, CodeStoreDatabaseFailure, "saving context")

	assert.True(t, Is(err, cause))
	assert.True(t, HasCode(err, CodeStoreDatabaseFailure))
	assert.Nil(t, Wrap(nil, CodeStoreDatabaseFailure, "noop"))
}

func TestReasonClassifiers(t *testing.T) {
	assert.True(t, IsConflict(New(CodeEngineValidateConflict, "dup")))
	assert.True(t, IsForbidden(New(CodeEngineValidateDenied, "protected")))
	assert.True(t, IsInvalidInput(New(CodeCoordsInvalidInput, "nan")))
	assert.True(t, IsInvalidInput(New(CodeConfigValidateInvalidValue, "bad")))
	assert.Equal(t, Code(""), CodeOf(stderrors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

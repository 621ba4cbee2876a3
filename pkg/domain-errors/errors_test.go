package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeNotFound, "no such property")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches wrapped code anywhere in the chain", func(t *testing.T) {
		inner := New(CodeConflict, "plot number taken")
		outer := Wrap(inner, CodeInternal, "submit failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeConflict))
	})

	t.Run("false for uncoded errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})

	t.Run("sees through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("context: %w", New(CodeForbidden, "not your application"))
		assert.True(t, HasCode(err, CodeForbidden))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("cause stays reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "store unavailable")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodePreconditionFailed, CodeOf(New(CodePreconditionFailed, "documents not yet validated")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeValidation, CodeOf(Wrap(New(CodeConflict, "inner"), CodeValidation, "outer")))
}

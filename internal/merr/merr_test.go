package merr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesKindAndMessage(t *testing.T) {
	err := New(KindInvalidParameter, "project_id %s is invalid", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidParameter")
	assert.Contains(t, err.Error(), "project_id p1 is invalid")
}

func TestWrap_PreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("disk error")
	err := Wrap(KindIOPermission, cause, "write failed")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "disk error")
}

func TestIs_MatchesKindThroughWrapping(t *testing.T) {
	inner := New(KindConflict, "segment pinned")
	outer := Wrap(KindInternal, inner, "batch failed")

	assert.True(t, Is(outer, KindInternal))
	assert.False(t, Is(outer, KindConflict))
	assert.True(t, Is(inner, KindConflict))
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindNotFound))
}

func TestKind_StringUnknown(t *testing.T) {
	var k Kind = 255
	assert.Equal(t, "Unknown", k.String())
}

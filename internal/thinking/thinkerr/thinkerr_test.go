package thinkerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	e := New(Validation, "thought is blank")
	assert.Equal(t, "VALIDATION_ERROR: thought is blank", e.Error())

	wrapped := Wrap(Internal, "tree update failed", errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR: tree update failed: boom", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(Security, "blocked", cause)
	assert.Same(t, cause, errors.Unwrap(wrapped))
	assert.ErrorIs(t, wrapped, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Security, CodeOf(New(Security, "rate limited")))
	assert.Equal(t, Internal, CodeOf(errors.New("plain error")))
}

func TestNewf(t *testing.T) {
	e := Newf(Tree, "node %q not found", "abc")
	assert.Equal(t, `TREE_ERROR: node "abc" not found`, e.Error())
}

package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(KindIO, "read directory", "/data/a", fs.ErrPermission)
	assert.Equal(t, "io: read directory /data/a: permission denied", err.Error())

	bare := &Error{Kind: KindStructural, Op: "probe graph"}
	assert.Equal(t, "structural: probe graph", bare.Error())
}

func TestIs_Wrapped(t *testing.T) {
	inner := Errorf(KindNetwork, "query", "http://localhost:9999", "connection refused")
	wrapped := fmt.Errorf("reconcile floppy: %w", inner)

	assert.True(t, Is(wrapped, KindNetwork))
	assert.False(t, Is(wrapped, KindData))
	assert.Equal(t, KindNetwork, KindOf(wrapped))
}

func TestIs_PlainError(t *testing.T) {
	assert.False(t, Is(errors.New("boom"), KindIO))
	assert.False(t, Is(nil, KindIO))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}

func TestUnwrap(t *testing.T) {
	err := New(KindData, "decode", "x.json", fs.ErrNotExist)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

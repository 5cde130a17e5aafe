package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	testCases := []struct {
		name     string
		fileName string
		expected string
	}{
		{"plain", "notes.pdf", "notes.pdf"},
		{"spaces and symbols", "My Notes (v2)!.docx", "My_Notes__v2__.docx"},
		{"path separators", "../etc/passwd", ".._etc_passwd"},
		{"unicode", "résumé.txt", "r_sum_.txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := Key("u1", at, tc.fileName)
			assert.Regexp(t, `^u1/1700000000123_[0-9a-f]{12}_`+regexp.QuoteMeta(tc.expected)+`$`, key)
		})
	}
}

func TestKeySameNameSameMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	seen := make(map[string]bool)
	for range 100 {
		key := Key("u1", at, "notes.txt")
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key := Key("u1", time.Now(), "notes.txt")
	require.NoError(t, store.Put(ctx, key, strings.NewReader("hello"), "text/plain"))

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	require.NoError(t, store.Remove(ctx, key))
	require.NoError(t, store.Remove(ctx, key))
	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalPutKeepsExistingObject(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "u1/notes.txt", strings.NewReader("first"), "text/plain"))
	err = store.Put(ctx, "u1/notes.txt", strings.NewReader("second"), "text/plain")
	assert.ErrorIs(t, err, ErrExists)

	rc, err := store.Open(ctx, "u1/notes.txt")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))

	entries, err := os.ReadDir(filepath.Join(store.root, "u1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside.txt", strings.NewReader("x"), "")
	assert.Error(t, err)
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "s3"})
	assert.Error(t, err)
}

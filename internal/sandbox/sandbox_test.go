package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot(t *testing.T, policy Policy) *Root {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("a"), 0o644))
	r, err := New(dir, policy)
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newRoot(t, DefaultPolicy())

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{"root", "", ".", nil},
		{"relative file", "sub/a.txt", "sub/a.txt", nil},
		{"missing file", "sub/new/b.txt", "sub/new/b.txt", nil},
		{"dot dot inside", "sub/../sub/a.txt", "sub/a.txt", nil},
		{"escape", "../outside", "", ErrOutsideRoot},
		{"absolute outside", "/etc/passwd", "", ErrOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Rel(got))
		})
	}
}

func TestResolveAbsoluteInside(t *testing.T) {
	r := newRoot(t, DefaultPolicy())

	got, err := r.Resolve(filepath.Join(r.Dir(), "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Dir(), "sub", "a.txt"), got)
}

func TestResolveSymlinkEscape(t *testing.T) {
	r := newRoot(t, DefaultPolicy())
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(r.Dir(), "link")))

	_, err := r.Resolve("link/secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolveWritePolicy(t *testing.T) {
	ro := newRoot(t, Policy{ReadOnly: true})
	_, err := ro.ResolveWrite("x.txt", 1)
	assert.ErrorIs(t, err, ErrReadOnly)

	small := newRoot(t, Policy{MaxFileSize: 4})
	_, err = small.ResolveWrite("x.txt", 5)
	assert.ErrorIs(t, err, ErrTooLarge)

	got, err := small.ResolveWrite("x.txt", 4)
	require.NoError(t, err)
	assert.Equal(t, "x.txt", small.Rel(got))
}

func TestNewRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New(file, DefaultPolicy())
	assert.ErrorContains(t, err, "not a directory")

	_, err = New(filepath.Join(t.TempDir(), "missing"), DefaultPolicy())
	assert.Error(t, err)
}

func TestAllowsSize(t *testing.T) {
	assert.True(t, Policy{}.AllowsSize(1<<30))
	assert.True(t, Policy{MaxFileSize: 10}.AllowsSize(10))
	assert.False(t, Policy{MaxFileSize: 10}.AllowsSize(11))
}

package mergefs

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFS(t *testing.T) {
	top := fstest.MapFS{
		"css/style.css": {Data: []byte("top")},
	}
	bottom := fstest.MapFS{
		"css/style.css": {Data: []byte("bottom")},
		"css/extra.css": {Data: []byte("extra")},
	}
	m := New(top, bottom)

	data, err := fs.ReadFile(m, "css/style.css")
	require.NoError(t, err)
	assert.Equal(t, "top", string(data))

	data, err = fs.ReadFile(m, "css/extra.css")
	require.NoError(t, err)
	assert.Equal(t, "extra", string(data))

	info, err := fs.Stat(m, "css/extra.css")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	_, err = m.Open("css/missing.css")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fs.Stat(m, "css/missing.css")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = m.Open("../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

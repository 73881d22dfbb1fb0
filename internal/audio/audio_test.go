package audio

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "responses")
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	path, err := s.Save([]byte("ID3-fake-mp3"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, FileExtension))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3-fake-mp3", string(data))
}

func TestFileStore_SaveEmpty(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save([]byte{})
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestFileStore_ConcurrentSavesDoNotCollide(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		paths = map[string]bool{}
		wg    sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Save([]byte("x"))
			assert.NoError(t, err)
			mu.Lock()
			paths[p] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, paths, 20)
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("")
	assert.ErrorIs(t, err, ErrEmptyDir)
}

package player

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Handle is a transient reference to decoded local media. Release is idempotent.
type Handle interface {
	URI() string
	Release()
}

// HandleFactory creates handles from binary payloads.
type HandleFactory interface {
	Create(name string, data []byte) (Handle, error)
	// Live returns how many created handles are not yet released.
	Live() int
}

// FileHandleFactory materializes payloads as temp files and deletes them on release.
type FileHandleFactory struct {
	dir  string
	live atomic.Int64
}

// NewFileHandleFactory creates handles under dir. An empty dir uses [os.TempDir].
func NewFileHandleFactory(dir string) *FileHandleFactory {
	return &FileHandleFactory{dir: dir}
}

func (f *FileHandleFactory) Create(name string, data []byte) (Handle, error) {
	pattern := "offbeat-*" + filepath.Ext(name)

	file, err := os.CreateTemp(f.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	f.live.Add(1)
	return &fileHandle{path: file.Name(), factory: f}, nil
}

func (f *FileHandleFactory) Live() int { return int(f.live.Load()) }

type fileHandle struct {
	path    string
	factory *FileHandleFactory
	once    sync.Once
}

func (h *fileHandle) URI() string { return h.path }

func (h *fileHandle) Release() {
	h.once.Do(func() {
		os.Remove(h.path)
		h.factory.live.Add(-1)
	})
}

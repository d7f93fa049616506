package filesystem

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockFileSystem is an in-memory FileSystem for tests. Parent directories
// of added files exist implicitly.
type MockFileSystem struct {
	mu          sync.RWMutex
	files       map[string][]byte
	perms       map[string]os.FileMode
	dirs        map[string]bool
	readErrors  map[string]error
	writeErrors map[string]error
	statErrors  map[string]error
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files:       make(map[string][]byte),
		perms:       make(map[string]os.FileMode),
		dirs:        make(map[string]bool),
		readErrors:  make(map[string]error),
		writeErrors: make(map[string]error),
		statErrors:  make(map[string]error),
	}
}

// SetReadError makes ReadFile of path fail
func (m *MockFileSystem) SetReadError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrors[filepath.Clean(path)] = err
}

// SetWriteError makes WriteFile of path fail
func (m *MockFileSystem) SetWriteError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrors[filepath.Clean(path)] = err
}

// SetStatError makes Stat of path fail
func (m *MockFileSystem) SetStatError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statErrors[filepath.Clean(path)] = err
}

func (m *MockFileSystem) AddFile(path string, data []byte, perm os.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putFile(filepath.Clean(path), data, perm)
}

func (m *MockFileSystem) AddDir(path string, perm os.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addDirs(filepath.Clean(path))
}

// GetFile returns the stored content of path, nil when absent
func (m *MockFileSystem) GetFile(path string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[filepath.Clean(path)]
}

func (m *MockFileSystem) putFile(path string, data []byte, perm os.FileMode) {
	m.files[path] = data
	m.perms[path] = perm
	m.addDirs(filepath.Dir(path))
}

func (m *MockFileSystem) addDirs(path string) {
	for {
		m.dirs[path] = true
		parent := filepath.Dir(path)
		if parent == path {
			return
		}
		path = parent
	}
}

func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path = filepath.Clean(path)

	if err, ok := m.readErrors[path]; ok {
		return nil, err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	return data, nil
}

func (m *MockFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)

	if err, ok := m.writeErrors[path]; ok {
		return err
	}
	m.putFile(path, append([]byte(nil), data...), perm)
	return nil
}

func (m *MockFileSystem) Stat(path string) (os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stat(filepath.Clean(path))
}

func (m *MockFileSystem) stat(path string) (os.FileInfo, error) {
	if err, ok := m.statErrors[path]; ok {
		return nil, err
	}
	if data, ok := m.files[path]; ok {
		return mockFileInfo{name: filepath.Base(path), size: int64(len(data)), mode: m.perms[path]}, nil
	}
	if m.dirs[path] {
		return mockFileInfo{name: filepath.Base(path), mode: os.ModeDir | 0755, dir: true}, nil
	}
	return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addDirs(filepath.Clean(path))
	return nil
}

// Walk visits root and everything below it in lexical order
func (m *MockFileSystem) Walk(root string, walkFn filepath.WalkFunc) error {
	m.mu.RLock()
	root = filepath.Clean(root)
	var paths []string
	within := func(p string) bool {
		return p == root || strings.HasPrefix(p, root+string(filepath.Separator)) || root == string(filepath.Separator)
	}
	for p := range m.files {
		if within(p) {
			paths = append(paths, p)
		}
	}
	for p := range m.dirs {
		if within(p) {
			paths = append(paths, p)
		}
	}
	infos := make(map[string]os.FileInfo, len(paths))
	errs := make(map[string]error)
	for _, p := range paths {
		info, err := m.stat(p)
		infos[p] = info
		if err != nil {
			errs[p] = err
		}
	}
	m.mu.RUnlock()

	if len(paths) == 0 {
		return walkFn(root, nil, &os.PathError{Op: "lstat", Path: root, Err: os.ErrNotExist})
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := walkFn(p, infos[p], errs[p]); err != nil {
			return err
		}
	}
	return nil
}

type mockFileInfo struct {
	name string
	size int64
	mode os.FileMode
	dir  bool
}

func (i mockFileInfo) Name() string       { return i.name }
func (i mockFileInfo) Size() int64        { return i.size }
func (i mockFileInfo) Mode() os.FileMode  { return i.mode }
func (i mockFileInfo) ModTime() time.Time { return time.Time{} }
func (i mockFileInfo) IsDir() bool        { return i.dir }
func (i mockFileInfo) Sys() interface{}   { return nil }

package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_WriteFileReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	fs := NewOSFileSystem()

	if err := fs.WriteFile(path, []byte("one"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile(path, []byte("two"), 0600); err != nil {
		t.Fatal(err)
	}
	data, err := fs.ReadFile(path)
	if err != nil || string(data) != "two" {
		t.Fatalf("ReadFile() = %q, %v", data, err)
	}
	info, err := fs.Stat(path)
	if err != nil || info.Mode().Perm() != 0600 {
		t.Errorf("Stat() = %v, %v", info, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestMockFileSystem_ImplicitDirsAndWalk(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/tools/b.json", []byte("{}"), 0644)
	fs.AddFile("/tools/nested/a.yaml", []byte("tools: []"), 0644)
	fs.AddFile("/other/c.json", []byte("{}"), 0644)

	info, err := fs.Stat("/tools/nested")
	if err != nil || !info.IsDir() {
		t.Fatalf("Stat(/tools/nested) = %v, %v", info, err)
	}

	var visited []string
	err = fs.Walk("/tools", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		visited = append(visited, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/tools", "/tools/b.json", "/tools/nested", "/tools/nested/a.yaml"}
	if len(visited) != len(want) {
		t.Fatalf("visited = %v", visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited = %v, want %v", visited, want)
			break
		}
	}

	if err := fs.Walk("/missing", func(path string, info os.FileInfo, err error) error { return err }); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Walk(/missing) = %v", err)
	}
}

func TestMockFileSystem_Errors(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/a", []byte("x"), 0600)
	fs.SetReadError("/a", os.ErrPermission)
	fs.SetWriteError("/b", os.ErrPermission)

	if _, err := fs.ReadFile("/a"); !errors.Is(err, os.ErrPermission) {
		t.Errorf("ReadFile() = %v", err)
	}
	if err := fs.WriteFile("/b", nil, 0600); !errors.Is(err, os.ErrPermission) {
		t.Errorf("WriteFile() = %v", err)
	}
	if _, err := fs.ReadFile("/c"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadFile(/c) = %v", err)
	}
}

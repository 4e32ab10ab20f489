package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) os.FileInfo {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return fi
}

func TestDiscoverIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	fi := writeFile(t, path, "hello\n")

	r := New()
	tf, created := r.Discover(path, fi)
	if !created {
		t.Fatal("first Discover should report a new entry")
	}
	if tf.Offset != 0 {
		t.Errorf("new entry offset = %d, want 0", tf.Offset)
	}

	again, created := r.Discover(path, fi)
	if created {
		t.Error("second Discover should not create a new entry")
	}
	if again != tf {
		t.Error("second Discover returned a different entry")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestMarkDirtyAndTakeDirty(t *testing.T) {
	dir := t.TempDir()
	r := New()

	// Discover in non-sorted order on purpose.
	for _, name := range []string{"c.log", "a.log", "b.log"} {
		path := filepath.Join(dir, name)
		fi := writeFile(t, path, name)
		r.Discover(path, fi)
	}

	dirty := r.TakeDirty()
	if len(dirty) != 3 {
		t.Fatalf("freshly discovered files dirty = %d, want 3", len(dirty))
	}
	for i, want := range []string{"a.log", "b.log", "c.log"} {
		if got := filepath.Base(dirty[i].Path); got != want {
			t.Errorf("dirty[%d] = %s, want %s", i, got, want)
		}
	}

	// Dirty set was consumed.
	if rest := r.TakeDirty(); len(rest) != 0 {
		t.Errorf("second TakeDirty returned %d entries, want 0", len(rest))
	}

	if !r.MarkDirty(filepath.Join(dir, "b.log")) {
		t.Error("MarkDirty on tracked file returned false")
	}
	if r.MarkDirty(filepath.Join(dir, "nope.log")) {
		t.Error("MarkDirty on untracked file returned true")
	}
	dirty = r.TakeDirty()
	if len(dirty) != 1 || filepath.Base(dirty[0].Path) != "b.log" {
		t.Errorf("dirty after MarkDirty = %v, want just b.log", dirty)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	fi := writeFile(t, path, "x")

	r := New()
	r.Discover(path, fi)
	if !r.Remove(path) {
		t.Error("Remove on tracked file returned false")
	}
	if r.Remove(path) {
		t.Error("Remove on already removed file returned true")
	}
	if r.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", r.Len())
	}
	if paths := r.Paths(); len(paths) != 0 {
		t.Errorf("Paths() after remove = %v, want empty", paths)
	}
}

func TestCheckRotationOnTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	fi := writeFile(t, path, "0123456789")

	r := New()
	tf, _ := r.Discover(path, fi)
	tf.Offset = 10
	tf.FirstOutputDone = true

	// Same file, unchanged: no rotation.
	if tf.CheckRotation(fi) {
		t.Fatal("unchanged file reported as rotated")
	}

	// Truncate below the confirmed offset.
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	fi2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !tf.CheckRotation(fi2) {
		t.Fatal("truncated file not reported as rotated")
	}
	if tf.Offset != 0 {
		t.Errorf("offset after rotation = %d, want 0", tf.Offset)
	}
	if tf.FirstOutputDone {
		t.Error("FirstOutputDone should be cleared by rotation")
	}
}

func TestCheckRotationOnReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	fi := writeFile(t, path, "old contents")

	r := New()
	tf, _ := r.Discover(path, fi)
	tf.Offset = int64(fi.Size())

	// Replace the file with a different one of equal size, as log
	// rotation does. The identity must notice.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	fi2 := writeFile(t, path, "new contents")
	if Fingerprint(fi2) == tf.Identity {
		t.Skip("filesystem reused the inode; identity cannot distinguish the files")
	}
	if !tf.CheckRotation(fi2) {
		t.Fatal("replaced file not reported as rotated")
	}
	if tf.Offset != 0 {
		t.Errorf("offset after rotation = %d, want 0", tf.Offset)
	}
}

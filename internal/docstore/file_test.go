package docstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/jwulff/echo/internal/errs"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// put overwrites key with v through Update.
func put(t *testing.T, s Store, key string, v any) {
	t.Helper()
	var discard any
	err := s.Update(key, &discard, func(bool) (bool, error) {
		discard = v
		return true, nil
	})
	if err != nil {
		t.Fatalf("update %s: %v", key, err)
	}
}

func TestFileStoreMissingDocument(t *testing.T) {
	s := NewFileStore(afero.NewMemMapFs(), "/data/doc.json")

	var got []item
	ok, err := s.Get("items", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("missing document should report key absent")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := NewFileStore(fsys, "/data/doc.json")

	want := []item{{"a", 1}, {"b", 2}}
	put(t, s, "items", want)
	put(t, s, "other", "keep")

	if exists, _ := afero.Exists(fsys, "/data/doc.json.tmp"); exists {
		t.Error("temp file left behind")
	}

	reopened := NewFileStore(fsys, "/data/doc.json")
	var got []item
	ok, err := reopened.Get("items", &got)
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("items = %+v, want %+v", got, want)
	}
	var other string
	if ok, _ := reopened.Get("other", &other); !ok || other != "keep" {
		t.Errorf("other = %q (ok=%v), want keep", other, ok)
	}
}

func TestFileStoreUpdateReadsCurrentFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := NewFileStore(fsys, "/doc.json")
	b := NewFileStore(fsys, "/doc.json")

	put(t, a, "items", []item{{"a", 1}})

	// b never read the document; its update must still see a's write.
	var items []item
	err := b.Update("items", &items, func(found bool) (bool, error) {
		if !found {
			t.Error("update did not see the existing key")
		}
		items = append(items, item{"b", 2})
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	var got []item
	if _, err := a.Get("items", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("items = %+v, want a then b", got)
	}
}

func TestFileStoreUpdateWithoutChange(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := NewFileStore(fsys, "/doc.json")

	var n int
	err := s.Update("k", &n, func(found bool) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if exists, _ := afero.Exists(fsys, "/doc.json"); exists {
		t.Error("unchanged update wrote the document")
	}

	boom := errors.New("boom")
	err = s.Update("k", &n, func(bool) (bool, error) { return true, boom })
	if !errors.Is(err, boom) {
		t.Errorf("update = %v, want callback error", err)
	}
	if exists, _ := afero.Exists(fsys, "/doc.json"); exists {
		t.Error("failed update wrote the document")
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/doc.json", []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var v any
	_, err := NewFileStore(fsys, "/doc.json").Get("k", &v)
	if !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestFileStoreWriteFailure(t *testing.T) {
	s := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/doc.json")

	var n int
	err := s.Update("k", &n, func(bool) (bool, error) {
		n = 1
		return true, nil
	})
	if !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("update = %v, want ErrPersistence", err)
	}
}

func TestOpenFileOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "echo-settings.json")
	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	put(t, s, "k", "v")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stat document: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("stat lock file: %v", err)
	}

	var v string
	if ok, err := s.Get("k", &v); err != nil || !ok || v != "v" {
		t.Errorf("get = %q, %v, %v", v, ok, err)
	}
}

package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetchFromDirectory(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "Algorithm"), 0755)
	os.WriteFile(filepath.Join(dir, "texcount.pl"), []byte("#!/usr/bin/perl"), 0644)
	os.WriteFile(filepath.Join(dir, "Algorithm", "Diff.pm"), []byte("package Algorithm::Diff;"), 0644)

	loader := NewLoader(dir)

	content, err := loader.Fetch(context.Background(), "/texcount.pl")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if content != "#!/usr/bin/perl" {
		t.Errorf("unexpected content %q", content)
	}

	files, err := loader.FetchAll(context.Background(), []string{"/texcount.pl", "/Algorithm/Diff.pm"})
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "/texcount.pl" || files[1].Path != "/Algorithm/Diff.pm" {
		t.Errorf("order not preserved: %s, %s", files[0].Path, files[1].Path)
	}
	if files[1].Content != "package Algorithm::Diff;" {
		t.Errorf("unexpected dependency content %q", files[1].Content)
	}
}

func TestFetchFileURL(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "latexdiff.pl"), []byte("diff"), 0644)

	loader := NewLoader("file://" + filepath.ToSlash(dir))
	content, err := loader.Fetch(context.Background(), "/latexdiff.pl")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if content != "diff" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestFetchHTTP(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/perl/latexpand.pl":
			w.Write([]byte("expand"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	loader := NewLoader(server.URL + "/perl/")

	content, err := loader.Fetch(context.Background(), "/latexpand.pl")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if content != "expand" {
		t.Errorf("unexpected content %q", content)
	}

	_, err = loader.Fetch(context.Background(), "/missing.pl")
	if !errors.Is(err, ErrFileLoad) {
		t.Fatalf("expected ErrFileLoad, got %v", err)
	}
	if !strings.Contains(err.Error(), "/missing.pl") || !strings.Contains(err.Error(), "404") {
		t.Errorf("error should name the path and status, got %q", err)
	}
}

func TestFetchAllFailsAsAWhole(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "present.pl"), []byte("ok"), 0644)

	loader := NewLoader(dir)
	files, err := loader.FetchAll(context.Background(), []string{"/present.pl", "/absent.pm"})
	if !errors.Is(err, ErrFileLoad) {
		t.Fatalf("expected ErrFileLoad, got %v", err)
	}
	if files != nil {
		t.Errorf("expected no files on failure, got %d", len(files))
	}
}

func TestFetchMaxSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	loader := NewLoader(server.URL, WithMaxSize(10))
	if _, err := loader.Fetch(context.Background(), "/big.pl"); !errors.Is(err, ErrFileLoad) {
		t.Errorf("expected size limit error, got %v", err)
	}
}

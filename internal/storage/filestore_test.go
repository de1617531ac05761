package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

func newTestStore(t *testing.T) FileStore {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	fs, err := NewLocalStore(log, t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return fs
}

func TestSaveOpenDeleteRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	url, err := fs.Save(ctx, "documents/abc.pdf", strings.NewReader("%PDF-1.4 test"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if url != "/files/documents/abc.pdf" {
		t.Fatalf("url = %q, want /files/documents/abc.pdf", url)
	}

	rc, err := fs.Open(ctx, "documents/abc.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "%PDF-1.4 test" {
		t.Fatalf("content = %q", raw)
	}

	if err := fs.Delete(ctx, "documents/abc.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Open(ctx, "documents/abc.pdf"); err == nil {
		t.Fatalf("Open succeeded after delete")
	}
	// Deleting a missing key is not an error.
	if err := fs.Delete(ctx, "documents/abc.pdf"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSaveRejectsEscapingKeys(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"../outside.pdf", "/etc/passwd", "a/../../b"} {
		if _, err := fs.Save(ctx, key, strings.NewReader("x")); err == nil {
			t.Errorf("Save(%q) accepted a key escaping the base dir", key)
		}
	}
}

func TestFetchToTemp(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	if _, err := fs.Save(ctx, "documents/x.pdf", strings.NewReader("payload")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path, cleanup, err := FetchToTemp(ctx, fs, "documents/x.pdf")
	if err != nil {
		t.Fatalf("FetchToTemp: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read temp: %v", err)
	}
	if string(raw) != "payload" {
		t.Fatalf("temp content = %q", raw)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("cleanup left the temp file behind")
	}
}

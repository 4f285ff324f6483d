package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	fails int
	calls int
}

func (f *fakeUploader) Put(ctx context.Context, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return errors.New("boom")
	}
	f.keys = append(f.keys, key)
	return nil
}

func writeFile(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMirrorUploadsWithRelativeKeys(t *testing.T) {
	root := t.TempDir()
	snap := filepath.Join(root, "stations", "s1", "snapshots", "40.snap.zst")
	writeFile(t, snap)

	up := &fakeUploader{fails: 1}
	m := New(up, root, Options{Prefix: "/backups/", Backoff: time.Microsecond}, nil)
	m.Enqueue(snap)
	m.EnqueueIfExists(filepath.Join(root, "stations", "s1", "archives", "run_001", "meta.json"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "backups/stations/s1/snapshots/40.snap.zst" {
		t.Fatalf("unexpected keys %v", up.keys)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 1 || st.UploadedTotal != 1 || st.FailedTotal != 0 || up.calls != 2 {
		t.Fatalf("stats=%+v calls=%d", st, up.calls)
	}
}

func TestMirrorCountsFailuresAndRejectsOutsidePaths(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "a.txt")
	writeFile(t, p)

	up := &fakeUploader{fails: 100}
	m := New(up, root, Options{Attempts: 2, Backoff: time.Microsecond}, nil)
	if _, err := m.Key(filepath.Join(filepath.Dir(root), "elsewhere.txt")); err == nil {
		t.Fatalf("expected outside-root key error")
	}
	m.Enqueue(p)
	m.Close()
	if st := m.Stats(); st.FailedTotal != 1 || up.calls != 2 {
		t.Fatalf("stats=%+v calls=%d", st, up.calls)
	}
}

func TestNilMirrorIsInert(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.EnqueueIfExists("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("nil mirror stats should be zero")
	}
}

func TestClientSignsPathStylePut(t *testing.T) {
	var gotPath, gotAuth, gotHash string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotBody, _ = io.ReadAll(r.Body)
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{Endpoint: srv.URL, Bucket: "station-backups", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	p := filepath.Join(t.TempDir(), "run 1.snap.zst")
	writeFile(t, p)
	if err := c.Put(context.Background(), "/stations//s1/run 1.snap.zst", p); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if gotPath != "/station-backups/stations/s1/run%201.snap.zst" {
		t.Fatalf("path=%q", gotPath)
	}
	sum := sha256.Sum256([]byte("payload"))
	if gotHash != hex.EncodeToString(sum[:]) || string(gotBody) != "payload" {
		t.Fatalf("payload hash=%q body=%q", gotHash, gotBody)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260304/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("authorization=%q", gotAuth)
	}
}

func TestClientReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, err := NewClient(ClientConfig{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	p := filepath.Join(t.TempDir(), "f")
	writeFile(t, p)
	if err := c.Put(context.Background(), "f", p); err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if _, err := NewClient(ClientConfig{Endpoint: srv.URL}); err == nil {
		t.Fatalf("expected missing credentials error")
	}
}

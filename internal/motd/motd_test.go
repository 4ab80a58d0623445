package motd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRenderNoneReturnsEmpty(t *testing.T) {
	r := New(ArtNone, true)
	defer r.Close()
	if got := r.Render("localhost", 8080, ""); got != nil {
		t.Errorf("expected nil banner for ArtNone, got %q", got)
	}
}

func TestRenderButterflyContainsConnectionInfo(t *testing.T) {
	r := New(ArtButterfly, true)
	defer r.Close()
	got := string(r.Render("localhost", 8080, "10.0.0.5:4242"))

	if !strings.Contains(got, "https://localhost:8080") {
		t.Errorf("expected listening-on line, got %q", got)
	}
	if !strings.Contains(got, "10.0.0.5:4242") {
		t.Errorf("expected connected-from line, got %q", got)
	}
	if strings.Contains(got, "\n") && !strings.Contains(got, "\r\n") {
		t.Error("expected newlines to be translated to CRLF")
	}
	if strings.Contains(got, "UNSECURE") {
		t.Error("did not expect UNSECURE marker for a secure render")
	}
}

func TestRenderUnsecureWarns(t *testing.T) {
	r := New(ArtButterfly, false)
	defer r.Close()
	got := string(r.Render("0.0.0.0", 8080, ""))
	if !strings.Contains(got, "UNSECURE") {
		t.Errorf("expected UNSECURE warning in insecure render, got %q", got)
	}
}

func TestRenderCustomFileAndHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "banner.txt")
	if err := os.WriteFile(path, []byte("original banner"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := New(path, true)
	defer r.Close()

	got := string(r.Render("host", 1, ""))
	if !strings.Contains(got, "original banner") {
		t.Fatalf("expected custom art in render, got %q", got)
	}

	if err := os.WriteFile(path, []byte("updated banner"), 0o644); err != nil {
		t.Fatalf("rewriting banner file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(string(r.Render("host", 1, "")), "updated banner") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected hot-reloaded banner content after file rewrite")
}

func TestRenderMissingCustomFileFallsBackToButterfly(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist.txt"), true)
	defer r.Close()
	got := string(r.Render("host", 1, ""))
	if !strings.Contains(got, "butterfly "+yellow+"v"+version) {
		t.Errorf("expected fallback to built-in art, got %q", got)
	}
}

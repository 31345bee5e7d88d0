package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ulikunitz/xz"
)

func TestNewArchiveName(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	got := NewArchiveName(ts)
	want := "2020-01-02T03:04:05Z.tar.xz"
	if got != want {
		t.Errorf("NewArchiveName() = %q, want %q", got, want)
	}
}

func TestBuildTarRootsUnderDb(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "gdax_BTC-USD"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	tarPath := filepath.Join(t.TempDir(), "out.tar")
	if err := buildTar(srcDir, tarPath); err != nil {
		t.Fatalf("buildTar: %v", err)
	}

	f, err := os.Open(tarPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		names = append(names, hdr.Name)
	}

	found := false
	for _, n := range names {
		if n == "db/gdax_BTC-USD" {
			found = true
		}
	}
	if !found {
		t.Errorf("tar entries = %v, want one named db/gdax_BTC-USD", names)
	}
}

func TestCompressXZRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.tar")
	dstPath := filepath.Join(dir, "out.tar.xz")

	payload := []byte("tick store archive payload")
	if err := os.WriteFile(srcPath, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := compressXZ(srcPath, dstPath); err != nil {
		t.Fatalf("compressXZ: %v", err)
	}

	compressed, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}

	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("xz.NewReader: %v", err)
	}
	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("xz read: %v", err)
	}

	if !bytes.Equal(decompressed, payload) {
		t.Errorf("round trip = %q, want %q", decompressed, payload)
	}
}

package ioutils

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plain.txt", "packed.txt.gz"} {
		p := filepath.Join(dir, name)
		w, err := CreateMaybeCompressed(p)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, "spectral window 0\n"); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		r, err := OpenMaybeCompressed(p)
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "spectral window 0\n" {
			t.Fatalf("%s: got %q", name, b)
		}
	}
}

func TestSniffsGzipWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	gz := filepath.Join(dir, "a.gz")
	w, err := CreateMaybeCompressed(gz)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(w, "hidden")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	renamed := filepath.Join(dir, "a.bin")
	if err := os.Rename(gz, renamed); err != nil {
		t.Fatal(err)
	}
	r, err := OpenMaybeCompressed(renamed)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	b, _ := io.ReadAll(r)
	if string(b) != "hidden" {
		t.Fatalf("got %q", b)
	}
}

package theme

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLookupInterpolates(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	if got := p.Lookup(0.5); got != (RGB{100, 50, 25}) {
		t.Fatalf("Lookup(0.5) = %v", got)
	}
	if got := p.Lookup(-1); got != p.Colors[0] {
		t.Fatalf("Lookup(-1) = %v", got)
	}
	if got := p.Lookup(2); got != p.Colors[1] {
		t.Fatalf("Lookup(2) = %v", got)
	}
	if got := p.Index(5); got != p.Colors[1] {
		t.Fatalf("Index(5) = %v", got)
	}
}

func TestLoadGPL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gpl")
	data := "GIMP Palette\nName: test\nColumns: 2\n# comment\n255 0 0 red\n0 0 255\tblue\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	th, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if th.Palette.Name != "test" || len(th.Palette.Colors) != 2 {
		t.Fatalf("palette %+v", th.Palette)
	}

	empty := filepath.Join(t.TempDir(), "empty.gpl")
	os.WriteFile(empty, []byte("GIMP Palette\n"), 0644)
	if _, err := LoadGPL(empty); !errors.Is(err, ErrEmptyPalette) {
		t.Fatalf("empty palette: %v", err)
	}
}

func TestReadGPLSkipsBadRows(t *testing.T) {
	p, err := ReadGPL(strings.NewReader("GIMP Palette\n300 0 0\n1 2\n-1 0 0\n16 32 255 ok\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Colors) != 1 || p.Colors[0].Hex() != "#1020ff" {
		t.Fatalf("colors %v", p.Colors)
	}
}

func TestLoadBuiltin(t *testing.T) {
	for _, name := range append(Names(), "", "default") {
		th, err := Load(name)
		if err != nil {
			t.Fatalf("Load(%q): %v", name, err)
		}
		if th.Accent() == "" {
			t.Fatalf("Load(%q): no accent colour", name)
		}
	}
	if _, err := Load("neon"); err == nil {
		t.Fatal("unknown palette accepted")
	}
}

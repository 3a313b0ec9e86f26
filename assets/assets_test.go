package assets

import (
	"bytes"
	"testing"
)

func TestBuild(t *testing.T) {
	page, err := Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for _, want := range [][]byte{
		[]byte("Energy Labeled Buildings"),
		[]byte("<svg"),
		[]byte("leaflet.js"),
		[]byte("/api/cities"),
	} {
		if !bytes.Contains(page, want) {
			t.Errorf("page is missing %q", want)
		}
	}
	if bytes.Contains(page, []byte("{{")) {
		t.Error("template placeholders left in page")
	}
}

func TestFavicon(t *testing.T) {
	if !bytes.HasPrefix(bytes.TrimSpace(Favicon), []byte("<svg")) {
		t.Errorf("unexpected favicon %q", Favicon[:min(len(Favicon), 16)])
	}
}

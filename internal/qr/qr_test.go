package qr

import (
	"bytes"
	"testing"
)

func TestLandingURL(t *testing.T) {
	got := LandingURL("https://droplab.example/", "camp_A", "dl1.abc_-123")
	want := "https://droplab.example/c/camp_A?r=dl1.abc_-123"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGeneratePNG(t *testing.T) {
	png, err := GeneratePNG("https://droplab.example/c/camp_A?r=tok", 0)
	if err != nil {
		t.Fatalf("GeneratePNG: %v", err)
	}
	// PNG 魔数。
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("output is not a png")
	}

	if _, err := GeneratePNG("", 256); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

package qrimage

import (
	"bytes"
	"testing"
)

func TestCheckInURL(t *testing.T) {
	got := CheckInURL("http://localhost:8080/checkin", 42, "abc 123")
	want := "http://localhost:8080/checkin?session=42&code=abc+123"
	if got != want {
		t.Fatalf("CheckInURL = %q, want %q", got, want)
	}
}

func TestEncodeProducesPNG(t *testing.T) {
	png, err := Encode("http://localhost:8080/checkin?session=1&code=x", 128)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("output does not look like a PNG (first bytes %x)", png[:4])
	}
}

package deltacodec

import (
	"bytes"
	"os/exec"
	"testing"
)

func requireXdelta3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("xdelta3"); err != nil {
		t.Skip("xdelta3 not found on PATH")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	requireXdelta3(t)

	old := []byte("abcdef")
	new := []byte("abcXYZdef")

	delta, err := Encode(new, old)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(delta, old)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !bytes.Equal(got, new) {
		t.Errorf("round trip = %q, want %q", got, new)
	}
}

func TestDecodeBadDeltaFails(t *testing.T) {
	requireXdelta3(t)

	if _, err := Decode([]byte("not a real delta"), []byte("abcdef")); err == nil {
		t.Error("expected Decode to fail on garbage delta bytes")
	}
}

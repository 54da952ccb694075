package applier

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/jjayrex/xdelta-patcher-generator/internal/container"
	"github.com/jjayrex/xdelta-patcher-generator/internal/deltacodec"
	"github.com/jjayrex/xdelta-patcher-generator/internal/digest"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patcherr"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchtypes"
)

func requireXdelta3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("xdelta3"); err != nil {
		t.Skip("xdelta3 not found on PATH")
	}
}

func TestVerifyAndApplyFullLifecycle(t *testing.T) {
	requireXdelta3(t)

	baseDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(baseDir, "same"), []byte("identical"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, "old"), []byte("abcdef"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, "gone"), []byte("delete me"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sameHash := digest.HashBytes([]byte("identical"))
	oldHash := digest.HashBytes([]byte("abcdef"))
	newHash := digest.HashBytes([]byte("abcXYZdef"))
	goneHash := digest.HashBytes([]byte("delete me"))

	delta, err := deltacodec.Encode([]byte("abcXYZdef"), []byte("abcdef"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	bundle := &patchtypes.PatchBundle{
		Manifest: patchtypes.Manifest{
			Product: "p", FromVersion: "1", ToVersion: "2",
			Files: []patchtypes.FileEntry{
				{Path: "same", Kind: patchtypes.Unchanged(), OriginalHash: sameHash, NewHash: sameHash},
				{Path: "old", Kind: patchtypes.Patched(0), OriginalHash: oldHash, NewHash: newHash},
				{Path: "gone", Kind: patchtypes.Deleted(), OriginalHash: goneHash, NewHash: digest.Zero},
				{Path: "fresh", Kind: patchtypes.Added(1), OriginalHash: digest.Zero, NewHash: digest.HashBytes([]byte("fresh contents"))},
			},
		},
		Entries: []patchtypes.PatchData{
			patchtypes.Xdelta(delta),
			patchtypes.Full([]byte("fresh contents")),
		},
	}

	if err := Verify(bundle, baseDir); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := Apply(bundle, baseDir, 2); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(baseDir, "old"))
	if err != nil {
		t.Fatalf("ReadFile old: %v", err)
	}
	if string(got) != "abcXYZdef" {
		t.Errorf("patched contents = %q, want %q", got, "abcXYZdef")
	}

	if _, err := os.Stat(filepath.Join(baseDir, "gone")); !os.IsNotExist(err) {
		t.Errorf("expected gone to be removed, stat err = %v", err)
	}

	got, err = os.ReadFile(filepath.Join(baseDir, "fresh"))
	if err != nil {
		t.Fatalf("ReadFile fresh: %v", err)
	}
	if string(got) != "fresh contents" {
		t.Errorf("added contents = %q, want %q", got, "fresh contents")
	}
}

func TestVerifyFailsOnMissingPrecondition(t *testing.T) {
	baseDir := t.TempDir()

	bundle := &patchtypes.PatchBundle{
		Manifest: patchtypes.Manifest{
			Files: []patchtypes.FileEntry{
				{Path: "missing", Kind: patchtypes.Deleted(), OriginalHash: digest.HashBytes([]byte("x")), NewHash: digest.Zero},
			},
		},
	}

	err := Verify(bundle, baseDir)
	if err == nil {
		t.Fatal("expected Verify to fail")
	}
	if !errors.Is(err, patcherr.ErrPreconditionMissing) {
		t.Errorf("expected ErrPreconditionMissing, got %v", err)
	}
}

func TestVerifyFailsOnHashMismatch(t *testing.T) {
	baseDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(baseDir, "f"), []byte("actual"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	bundle := &patchtypes.PatchBundle{
		Manifest: patchtypes.Manifest{
			Files: []patchtypes.FileEntry{
				{Path: "f", Kind: patchtypes.Deleted(), OriginalHash: digest.HashBytes([]byte("expected")), NewHash: digest.Zero},
			},
		},
	}

	err := Verify(bundle, baseDir)
	if err == nil {
		t.Fatal("expected Verify to fail")
	}
	if !errors.Is(err, patcherr.ErrPreconditionMismatch) {
		t.Errorf("expected ErrPreconditionMismatch, got %v", err)
	}
}

func TestLoadFromRoundTripsThroughContainer(t *testing.T) {
	h := digest.HashBytes([]byte("x"))
	bundle := &patchtypes.PatchBundle{
		Manifest: patchtypes.Manifest{
			Product: "p", FromVersion: "1", ToVersion: "2",
			Files: []patchtypes.FileEntry{
				{Path: "a", Kind: patchtypes.Unchanged(), OriginalHash: h, NewHash: h},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "container.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := container.Write(f, []byte("stub bytes here"), bundle); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.Manifest.Product != "p" {
		t.Errorf("Product = %q, want %q", got.Manifest.Product, "p")
	}
}

package patchtypes

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/jjayrex/xdelta-patcher-generator/internal/digest"
)

func sampleBundle() *PatchBundle {
	oldHash := digest.HashBytes([]byte("old contents"))
	newHash := digest.HashBytes([]byte("new contents"))
	addedHash := digest.HashBytes([]byte("added contents"))

	return &PatchBundle{
		Manifest: Manifest{
			Product:     "clear-linux-os",
			FromVersion: "100",
			ToVersion:   "110",
			Files: []FileEntry{
				{Path: "usr/bin/unchanged", Kind: Unchanged(), OriginalHash: oldHash, NewHash: oldHash},
				{Path: "usr/bin/patched", Kind: Patched(0), OriginalHash: oldHash, NewHash: newHash},
				{Path: "usr/bin/added", Kind: Added(1), OriginalHash: digest.Zero, NewHash: addedHash},
				{Path: "usr/bin/deleted", Kind: Deleted(), OriginalHash: oldHash, NewHash: digest.Zero},
			},
		},
		Entries: []PatchData{
			Xdelta([]byte("xdelta payload")),
			Full([]byte("full payload")),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleBundle()

	got, err := Decode(Encode(want))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !reflect.DeepEqual(want, got) {
		t.Errorf("round trip mismatch:\n got = %+v\nwant = %+v", got, want)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := Encode(sampleBundle())
	data[0] = 'X'

	if _, err := Decode(data); err == nil {
		t.Error("expected Decode to reject a corrupted magic")
	}
}

func TestDecodeRejectsTruncatedBundle(t *testing.T) {
	data := Encode(sampleBundle())

	if _, err := Decode(data[:len(data)-10]); err == nil {
		t.Error("expected Decode to reject a truncated bundle")
	}
}

func TestDecodeRejectsBogusFileCount(t *testing.T) {
	data := Encode(sampleBundle())

	// file count is the first uint32 after magic+version+the three
	// length-prefixed manifest strings; overwriting it with a huge value
	// must fail cleanly rather than drive a multi-gigabyte preallocation.
	offset := 4 + 2 + 4 + len("clear-linux-os") + 4 + len("100") + 4 + len("110")
	binary.LittleEndian.PutUint32(data[offset:offset+4], 0xFFFFFFFF)

	if _, err := Decode(data); err == nil {
		t.Error("expected Decode to reject a bogus file count")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data := append(Encode(sampleBundle()), 0xFF)

	if _, err := Decode(data); err == nil {
		t.Error("expected Decode to reject trailing bytes")
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	data := Encode(sampleBundle())
	// format version lives immediately after the 4-byte magic
	data[4] = 0xFF

	if _, err := Decode(data); err == nil {
		t.Error("expected Decode to reject an unsupported format version")
	}
}

func TestDecodeRejectsDuplicatePath(t *testing.T) {
	bundle := sampleBundle()
	bundle.Manifest.Files = append(bundle.Manifest.Files, bundle.Manifest.Files[0])

	if _, err := Decode(Encode(bundle)); err == nil {
		t.Error("expected Decode to reject duplicate paths")
	}
}

func TestDecodeRejectsIdxOutOfRange(t *testing.T) {
	bundle := sampleBundle()
	bundle.Manifest.Files[1].Kind = Patched(99)

	if _, err := Decode(Encode(bundle)); err == nil {
		t.Error("expected Decode to reject an out-of-range idx")
	}
}

func TestDecodeRejectsPatchedIdxPointingAtFullPayload(t *testing.T) {
	bundle := sampleBundle()
	bundle.Manifest.Files[1].Kind = Patched(1) // entries[1] is Full, not Xdelta

	if _, err := Decode(Encode(bundle)); err == nil {
		t.Error("expected Decode to reject a Patched entry referencing a Full payload")
	}
}

func TestValidateRejectsUnchangedWithDifferingHashes(t *testing.T) {
	bundle := sampleBundle()
	bundle.Manifest.Files[0].NewHash = digest.HashBytes([]byte("something else"))

	if err := Validate(bundle); err == nil {
		t.Error("expected Validate to reject Unchanged with mismatched hashes")
	}
}

func TestValidateRejectsAddedWithNonZeroOriginalHash(t *testing.T) {
	bundle := sampleBundle()
	bundle.Manifest.Files[2].OriginalHash = digest.HashBytes([]byte("should be zero"))

	if err := Validate(bundle); err == nil {
		t.Error("expected Validate to reject Added with a non-zero original hash")
	}
}

func TestValidateRejectsDeletedWithNonZeroNewHash(t *testing.T) {
	bundle := sampleBundle()
	bundle.Manifest.Files[3].NewHash = digest.HashBytes([]byte("should be zero"))

	if err := Validate(bundle); err == nil {
		t.Error("expected Validate to reject Deleted with a non-zero new hash")
	}
}

func TestValidateAcceptsSampleBundle(t *testing.T) {
	if err := Validate(sampleBundle()); err != nil {
		t.Errorf("Validate rejected a well-formed bundle: %v", err)
	}
}

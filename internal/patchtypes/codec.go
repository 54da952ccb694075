// Copyright 2018 Intel Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package patchtypes

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/jjayrex/xdelta-patcher-generator/internal/patcherr"
)

// Magic identifies the start of an encoded bundle body, so a trailer that
// lands on unrelated bytes is rejected distinctly rather than producing an
// arbitrary decode failure.
var Magic = [4]byte{'P', 'B', 'D', '1'}

// FormatVersion is the wire format version for the encoded bundle body.
const FormatVersion uint16 = 1

// Encode serializes a bundle deterministically: magic, format version, then
// the manifest and entries. Encode does not validate bundle invariants;
// callers that build bundles themselves are expected to construct them
// correctly, and Decode always re-validates on the way back in.
func Encode(bundle *PatchBundle) []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	writeUint16(&buf, FormatVersion)

	writeString(&buf, bundle.Manifest.Product)
	writeString(&buf, bundle.Manifest.FromVersion)
	writeString(&buf, bundle.Manifest.ToVersion)

	writeUint32(&buf, uint32(len(bundle.Manifest.Files)))
	for _, f := range bundle.Manifest.Files {
		writeString(&buf, f.Path)
		buf.WriteByte(byte(f.Kind.Tag))
		if f.Kind.HasIdx() {
			writeUint32(&buf, f.Kind.Idx)
		}
		buf.Write(f.OriginalHash[:])
		buf.Write(f.NewHash[:])
	}

	writeUint32(&buf, uint32(len(bundle.Entries)))
	for _, e := range bundle.Entries {
		buf.WriteByte(byte(e.Tag))
		writeBytes(&buf, e.Bytes)
	}

	return buf.Bytes()
}

// Decode parses and validates an encoded bundle body (as produced by
// Encode, i.e. magic + version + manifest + entries, NOT including the
// trailing length footer — see the container package for that).
func Decode(data []byte) (*PatchBundle, error) {
	r := &reader{buf: data}

	var magic [4]byte
	if err := r.readExact(magic[:]); err != nil {
		return nil, errors.Wrap(patcherr.ErrInvalidBundle, "truncated magic")
	}
	if magic != Magic {
		return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "bad magic %q", magic)
	}

	version, err := r.readUint16()
	if err != nil {
		return nil, errors.Wrap(patcherr.ErrInvalidBundle, "truncated format version")
	}
	if version != FormatVersion {
		return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "unsupported format version %d", version)
	}

	bundle := &PatchBundle{}

	if bundle.Manifest.Product, err = r.readString(); err != nil {
		return nil, errors.Wrap(err, "reading product")
	}
	if bundle.Manifest.FromVersion, err = r.readString(); err != nil {
		return nil, errors.Wrap(err, "reading from_version")
	}
	if bundle.Manifest.ToVersion, err = r.readString(); err != nil {
		return nil, errors.Wrap(err, "reading to_version")
	}

	// minFileEntrySize is the smallest a FileEntry can possibly encode to:
	// a 1-byte kind tag, a 4-byte length prefix for an empty path, and two
	// 32-byte hashes (no Idx). Bounding fileCount against the remaining
	// buffer this way rejects a corrupted/truncated count before it drives
	// a preallocation sized by attacker-controlled input.
	const minFileEntrySize = 1 + 4 + 32 + 32

	fileCount, err := r.readCount("file count", minFileEntrySize)
	if err != nil {
		return nil, err
	}

	bundle.Manifest.Files = make([]FileEntry, 0, fileCount)
	seenPaths := make(map[string]bool, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		var f FileEntry
		if f.Path, err = r.readString(); err != nil {
			return nil, errors.Wrapf(err, "reading path of file entry %d", i)
		}
		if seenPaths[f.Path] {
			return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "duplicate path %q in manifest", f.Path)
		}
		seenPaths[f.Path] = true

		tag, err := r.readByte()
		if err != nil {
			return nil, errors.Wrapf(err, "reading kind tag of %q", f.Path)
		}
		f.Kind.Tag = KindTag(tag)
		switch f.Kind.Tag {
		case KindUnchanged, KindDeleted:
			// no idx
		case KindPatched, KindAdded:
			if f.Kind.Idx, err = r.readUint32(); err != nil {
				return nil, errors.Wrapf(err, "reading idx of %q", f.Path)
			}
		default:
			return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "invalid kind tag %d for %q", tag, f.Path)
		}

		if err = r.readExact(f.OriginalHash[:]); err != nil {
			return nil, errors.Wrapf(err, "reading original hash of %q", f.Path)
		}
		if err = r.readExact(f.NewHash[:]); err != nil {
			return nil, errors.Wrapf(err, "reading new hash of %q", f.Path)
		}

		bundle.Manifest.Files = append(bundle.Manifest.Files, f)
	}

	// minPatchDataSize is the smallest a PatchData can possibly encode to:
	// a 1-byte tag plus a 4-byte length prefix for an empty payload.
	const minPatchDataSize = 1 + 4

	entryCount, err := r.readCount("entry count", minPatchDataSize)
	if err != nil {
		return nil, err
	}

	bundle.Entries = make([]PatchData, 0, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		tag, err := r.readByte()
		if err != nil {
			return nil, errors.Wrapf(err, "reading tag of entry %d", i)
		}
		data, err := r.readBytes()
		if err != nil {
			return nil, errors.Wrapf(err, "reading payload of entry %d", i)
		}

		switch DataTag(tag) {
		case DataXdelta, DataFull:
			bundle.Entries = append(bundle.Entries, PatchData{Tag: DataTag(tag), Bytes: data})
		default:
			return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "invalid data tag %d for entry %d", tag, i)
		}
	}

	if !r.atEnd() {
		return nil, errors.Wrap(patcherr.ErrInvalidBundle, "trailing bytes after entries")
	}

	if err := Validate(bundle); err != nil {
		return nil, err
	}

	return bundle, nil
}

// Validate checks the cross-variant invariants described in the data
// model: Idx bounds, Kind/PatchData discriminant agreement, and the hash
// constraints each Kind carries.
func Validate(bundle *PatchBundle) error {
	seenPaths := make(map[string]bool, len(bundle.Manifest.Files))
	for _, f := range bundle.Manifest.Files {
		if seenPaths[f.Path] {
			return errors.Wrapf(patcherr.ErrInvalidBundle, "duplicate path %q", f.Path)
		}
		seenPaths[f.Path] = true

		switch f.Kind.Tag {
		case KindUnchanged:
			if f.OriginalHash.IsZero() || f.NewHash.IsZero() || f.OriginalHash != f.NewHash {
				return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: Unchanged requires equal non-zero hashes", f.Path)
			}
		case KindAdded:
			if !f.OriginalHash.IsZero() || f.NewHash.IsZero() {
				return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: Added requires zero original hash and non-zero new hash", f.Path)
			}
			if err := checkIdx(bundle, f.Path, f.Kind.Idx, DataFull); err != nil {
				return err
			}
		case KindDeleted:
			if f.OriginalHash.IsZero() || !f.NewHash.IsZero() {
				return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: Deleted requires non-zero original hash and zero new hash", f.Path)
			}
		case KindPatched:
			if f.OriginalHash.IsZero() || f.NewHash.IsZero() || f.OriginalHash == f.NewHash {
				return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: Patched requires distinct non-zero hashes", f.Path)
			}
			if err := checkIdx(bundle, f.Path, f.Kind.Idx, DataXdelta); err != nil {
				return err
			}
		default:
			return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: unknown kind tag %d", f.Path, f.Kind.Tag)
		}
	}
	return nil
}

func checkIdx(bundle *PatchBundle, path string, idx uint32, want DataTag) error {
	if int(idx) >= len(bundle.Entries) {
		return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: idx %d out of range (have %d entries)", path, idx, len(bundle.Entries))
	}
	if got := bundle.Entries[idx].Tag; got != want {
		return errors.Wrapf(patcherr.ErrInvalidBundle, "%q: entry %d is %s, want %s", path, idx, got, want)
	}
	return nil
}

// --- little-endian, length-prefixed primitive helpers ---

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) atEnd() bool {
	return r.pos == len(r.buf)
}

func (r *reader) readExact(dst []byte) error {
	if len(r.buf)-r.pos < len(dst) {
		return errors.Wrap(patcherr.ErrInvalidBundle, "truncated bundle")
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

func (r *reader) readByte() (byte, error) {
	var b [1]byte
	if err := r.readExact(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readUint16() (uint16, error) {
	var b [2]byte
	if err := r.readExact(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *reader) readUint32() (uint32, error) {
	var b [4]byte
	if err := r.readExact(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// readCount reads a length-prefixed sequence count and rejects it outright
// if it claims more entries than the remaining buffer could possibly hold
// at minEntrySize bytes apiece, so a corrupted/truncated count never drives
// a preallocation sized by attacker-controlled input.
func (r *reader) readCount(what string, minEntrySize int) (uint32, error) {
	n, err := r.readUint32()
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", what)
	}
	if uint64(n)*uint64(minEntrySize) > uint64(len(r.buf)-r.pos) {
		return 0, errors.Wrapf(patcherr.ErrInvalidBundle, "%s %d exceeds remaining bundle bytes", what, n)
	}
	return n, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)-r.pos) < uint64(n) {
		return nil, errors.Wrap(patcherr.ErrInvalidBundle, "truncated length-prefixed field")
	}
	out := make([]byte, n)
	if err := r.readExact(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

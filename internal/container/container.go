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

// Package container frames a self-extracting patch executable: the
// prebuilt applier stub, followed by the encoded bundle, followed by an
// 8-byte little-endian trailer giving the bundle's length.
//
//	[ applier stub bytes ][ encoded PatchBundle ][ u64 LE length of bundle ]
package container

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/jjayrex/xdelta-patcher-generator/internal/patcherr"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchtypes"
)

// TrailerSize is the fixed width, in bytes, of the length footer.
const TrailerSize = 8

// Write emits stub, then the encoded bundle, then the trailer, to w.
func Write(w io.Writer, stub []byte, bundle *patchtypes.PatchBundle) error {
	if _, err := w.Write(stub); err != nil {
		return errors.Wrap(err, "writing stub")
	}

	body := patchtypes.Encode(bundle)
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "writing bundle body")
	}

	var trailer [TrailerSize]byte
	binary.LittleEndian.PutUint64(trailer[:], uint64(len(body)))
	if _, err := w.Write(trailer[:]); err != nil {
		return errors.Wrap(err, "writing trailer")
	}
	return nil
}

// ReadBundleBody extracts the encoded bundle region from the io.ReadSeeker
// r (typically an *os.File), using the trailer at its end.
// It does not itself decode the bundle; callers pass the result to
// patchtypes.Decode.
func ReadBundleBody(r io.ReadSeeker) ([]byte, error) {
	total, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "seeking to end")
	}
	if total < TrailerSize {
		return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "file too short (%d bytes) to hold a trailer", total)
	}

	if _, err := r.Seek(total-TrailerSize, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to trailer")
	}
	var trailer [TrailerSize]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, errors.Wrap(err, "reading trailer")
	}
	bodyLen := binary.LittleEndian.Uint64(trailer[:])

	// total >= TrailerSize is already established above, so total-TrailerSize
	// is non-negative; comparing this way avoids overflow in bodyLen+TrailerSize
	// for an adversarial/corrupted trailer (e.g. all 0xFF bytes).
	if bodyLen > uint64(total-TrailerSize) {
		return nil, errors.Wrapf(patcherr.ErrInvalidBundle, "trailer length %d exceeds file size %d", bodyLen, total)
	}

	bodyStart := total - TrailerSize - int64(bodyLen)
	if _, err := r.Seek(bodyStart, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to bundle body")
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "reading bundle body")
	}
	return body, nil
}

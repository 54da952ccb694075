// Copyright 2017 Intel Corporation
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

// Package digest computes the 256-bit content digest used throughout the
// patch pipeline to identify file pre-images and post-images.
package digest

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"lukechampine.com/blake3"
)

// Digest is a BLAKE3-256 content digest.
type Digest [32]byte

// Zero is the sentinel value meaning "file does not exist".
var Zero Digest

// IsZero reports whether d is the all-zero sentinel.
func (d Digest) IsZero() bool {
	return d == Zero
}

// HashFile computes the digest of a regular file on disk.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Zero, errors.Wrapf(err, "opening %s for hashing", path)
	}
	defer func() {
		_ = f.Close()
	}()

	d, err := HashReader(f)
	if err != nil {
		return Zero, errors.Wrapf(err, "hashing %s", path)
	}
	return d, nil
}

// HashReader computes the digest of the bytes produced by r.
func HashReader(r io.Reader) (Digest, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return Zero, err
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// HashBytes computes the digest of data already in memory.
func HashBytes(data []byte) Digest {
	sum := blake3.Sum256(data)
	return Digest(sum)
}

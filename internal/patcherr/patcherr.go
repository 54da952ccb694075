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

// Package patcherr defines the sentinel error kinds shared by the builder
// and applier. Callers use errors.Is against these values; context (paths,
// hash mismatches, etc.) is layered on with github.com/pkg/errors.Wrapf.
package patcherr

import "errors"

var (
	// ErrInvalidBundle covers a malformed trailer, bad magic/version,
	// decoder rejection, or a Kind/PatchData/Idx inconsistency.
	ErrInvalidBundle = errors.New("invalid bundle")

	// ErrPreconditionMissing means a pre-image file the manifest expects
	// is absent from the target tree.
	ErrPreconditionMissing = errors.New("precondition file missing")

	// ErrPreconditionMismatch means a pre-image file is present but its
	// hash does not match the manifest's recorded original hash.
	ErrPreconditionMismatch = errors.New("precondition hash mismatch")

	// ErrCodecFailure means the delta codec (the xdelta3 subprocess)
	// failed to encode or decode.
	ErrCodecFailure = errors.New("delta codec failure")

	// ErrIoFailure covers a filesystem operation failing while Apply
	// changes the tree (mkdir, temp-file create/write/close, rename,
	// remove, reading a patch target). Read, stat and hash failures in
	// the builder and in Verify are returned with path context but are
	// not wrapped in this sentinel.
	ErrIoFailure = errors.New("i/o failure")

	// ErrBuildInputError means a source tree path could not be normalized
	// to a UTF-8, forward-slash, non-escaping relative path.
	ErrBuildInputError = errors.New("invalid source path")
)

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

// Package patchtypes defines the strongly-typed patch bundle data model
// (Manifest, FileEntry, PatchKind, PatchData, PatchBundle) and its
// deterministic binary encoding.
package patchtypes

import (
	"fmt"

	"github.com/jjayrex/xdelta-patcher-generator/internal/digest"
)

// KindTag discriminates the variants of PatchKind.
type KindTag byte

// The four ways a file can relate between the old and new tree.
const (
	KindUnchanged KindTag = iota
	KindPatched
	KindAdded
	KindDeleted
)

func (t KindTag) String() string {
	switch t {
	case KindUnchanged:
		return "Unchanged"
	case KindPatched:
		return "Patched"
	case KindAdded:
		return "Added"
	case KindDeleted:
		return "Deleted"
	default:
		return fmt.Sprintf("KindTag(%d)", byte(t))
	}
}

// PatchKind is the tagged union of what happened to one file between the
// old and new tree. Idx is only meaningful for Patched and Added.
type PatchKind struct {
	Tag KindTag
	Idx uint32
}

// Unchanged returns the Unchanged variant.
func Unchanged() PatchKind { return PatchKind{Tag: KindUnchanged} }

// Patched returns the Patched variant referencing entries[idx].
func Patched(idx uint32) PatchKind { return PatchKind{Tag: KindPatched, Idx: idx} }

// Added returns the Added variant referencing entries[idx].
func Added(idx uint32) PatchKind { return PatchKind{Tag: KindAdded, Idx: idx} }

// Deleted returns the Deleted variant.
func Deleted() PatchKind { return PatchKind{Tag: KindDeleted} }

// HasIdx reports whether this Kind carries a payload index.
func (k PatchKind) HasIdx() bool {
	return k.Tag == KindPatched || k.Tag == KindAdded
}

// DataTag discriminates the variants of PatchData.
type DataTag byte

// The two payload shapes a manifest entry can reference.
const (
	DataXdelta DataTag = iota
	DataFull
)

func (t DataTag) String() string {
	switch t {
	case DataXdelta:
		return "Xdelta"
	case DataFull:
		return "Full"
	default:
		return fmt.Sprintf("DataTag(%d)", byte(t))
	}
}

// PatchData is an opaque payload blob: either a binary delta against the
// pre-image (Xdelta) or the complete post-image contents (Full).
type PatchData struct {
	Tag   DataTag
	Bytes []byte
}

// Xdelta builds an Xdelta-tagged payload.
func Xdelta(b []byte) PatchData { return PatchData{Tag: DataXdelta, Bytes: b} }

// Full builds a Full-tagged payload.
func Full(b []byte) PatchData { return PatchData{Tag: DataFull, Bytes: b} }

// FileEntry describes one file observed in the union of the old and new
// trees.
type FileEntry struct {
	Path         string
	Kind         PatchKind
	OriginalHash digest.Digest
	NewHash      digest.Digest
}

// Manifest describes a transition between two versions of one product.
type Manifest struct {
	Product     string
	FromVersion string
	ToVersion   string
	Files       []FileEntry
}

// PatchBundle couples a Manifest to the payload blobs its entries reference.
type PatchBundle struct {
	Manifest Manifest
	Entries  []PatchData
}

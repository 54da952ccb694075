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

// Package builder walks an old and a new directory tree and classifies
// every file into a PatchBundle: unchanged, patched, added, or deleted.
package builder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/jjayrex/xdelta-patcher-generator/internal/deltacodec"
	"github.com/jjayrex/xdelta-patcher-generator/internal/digest"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchlog"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patcherr"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchtypes"
	"github.com/jjayrex/xdelta-patcher-generator/internal/workerpool"
)

// BuildOptions controls one Build invocation.
type BuildOptions struct {
	Product     string
	FromVersion string
	ToVersion   string
	DeleteExtra bool
	// Workers overrides the classification worker pool size. <= 0 means
	// "use runtime.NumCPU()".
	Workers int
}

// classification is what one worker produces for one new-tree entry (or one
// deleted old-tree entry); the serial post-pass turns these into FileEntry
// plus Idx-assigned payloads.
type classification struct {
	path string
	kind patchtypes.KindTag
	orig digest.Digest
	new  digest.Digest
	// payload is nil for Unchanged and Deleted.
	payload *patchtypes.PatchData
	err     error
}

// Build diffs oldDir against newDir and returns the resulting bundle.
func Build(oldDir, newDir string, opts BuildOptions) (*patchtypes.PatchBundle, error) {
	patchlog.Info(patchlog.Build, "scanning %s", oldDir)
	oldIndex, err := walkRegularFiles(oldDir)
	if err != nil {
		return nil, errors.Wrapf(err, "walking old tree %s", oldDir)
	}

	patchlog.Info(patchlog.Build, "scanning %s", newDir)
	newList, err := walkRegularFilesOrdered(newDir)
	if err != nil {
		return nil, errors.Wrapf(err, "walking new tree %s", newDir)
	}

	results := make([]classification, len(newList))
	workerpool.Run(len(newList), opts.Workers, func(i int) {
		entry := newList[i]
		results[i] = classifyNewEntry(oldDir, newDir, oldIndex, entry)
	})

	for _, r := range results {
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "classifying %s", r.path)
		}
	}

	var deletedPaths []string
	if opts.DeleteExtra {
		seen := make(map[string]bool, len(newList))
		for _, e := range newList {
			seen[e.rel] = true
		}
		for rel := range oldIndex {
			if !seen[rel] {
				deletedPaths = append(deletedPaths, rel)
			}
		}
		sort.Strings(deletedPaths)
	}

	deletedResults := make([]classification, len(deletedPaths))
	workerpool.Run(len(deletedPaths), opts.Workers, func(i int) {
		rel := deletedPaths[i]
		h, err := digest.HashFile(oldIndex[rel])
		if err != nil {
			deletedResults[i] = classification{path: rel, err: errors.Wrapf(err, "hashing deleted file %s", rel)}
			return
		}
		deletedResults[i] = classification{path: rel, kind: patchtypes.KindDeleted, orig: h}
	})
	for _, r := range deletedResults {
		if r.err != nil {
			return nil, r.err
		}
	}

	bundle := &patchtypes.PatchBundle{
		Manifest: patchtypes.Manifest{
			Product:     opts.Product,
			FromVersion: opts.FromVersion,
			ToVersion:   opts.ToVersion,
		},
	}

	// Serial index-assignment pass: workers only ever fill a preallocated
	// slot, never decide where a payload lands in Entries.
	assign := func(c classification) patchtypes.FileEntry {
		fe := patchtypes.FileEntry{Path: c.path, OriginalHash: c.orig, NewHash: c.new}
		switch c.kind {
		case patchtypes.KindUnchanged:
			fe.Kind = patchtypes.Unchanged()
		case patchtypes.KindDeleted:
			fe.Kind = patchtypes.Deleted()
		case patchtypes.KindAdded:
			idx := uint32(len(bundle.Entries))
			bundle.Entries = append(bundle.Entries, *c.payload)
			fe.Kind = patchtypes.Added(idx)
		case patchtypes.KindPatched:
			idx := uint32(len(bundle.Entries))
			bundle.Entries = append(bundle.Entries, *c.payload)
			fe.Kind = patchtypes.Patched(idx)
		}
		return fe
	}

	for _, c := range results {
		bundle.Manifest.Files = append(bundle.Manifest.Files, assign(c))
	}
	for _, c := range deletedResults {
		bundle.Manifest.Files = append(bundle.Manifest.Files, assign(c))
	}

	patchlog.Info(patchlog.Build, "classified %d files (%d deleted)", len(results), len(deletedResults))
	return bundle, nil
}

func classifyNewEntry(oldDir, newDir string, oldIndex map[string]string, entry treeEntry) classification {
	newAbs := filepath.Join(newDir, entry.rel)
	newHash, err := digest.HashFile(newAbs)
	if err != nil {
		return classification{path: entry.rel, err: errors.Wrapf(err, "hashing %s", newAbs)}
	}

	oldAbs, existed := oldIndex[entry.rel]
	if !existed {
		contents, err := os.ReadFile(newAbs)
		if err != nil {
			return classification{path: entry.rel, err: errors.Wrapf(err, "reading %s", newAbs)}
		}
		payload := patchtypes.Full(contents)
		return classification{path: entry.rel, kind: patchtypes.KindAdded, new: newHash, payload: &payload}
	}

	oldHash, err := digest.HashFile(oldAbs)
	if err != nil {
		return classification{path: entry.rel, err: errors.Wrapf(err, "hashing %s", oldAbs)}
	}

	if oldHash == newHash {
		return classification{path: entry.rel, kind: patchtypes.KindUnchanged, orig: oldHash, new: newHash}
	}

	oldContents, err := os.ReadFile(oldAbs)
	if err != nil {
		return classification{path: entry.rel, err: errors.Wrapf(err, "reading %s", oldAbs)}
	}
	newContents, err := os.ReadFile(newAbs)
	if err != nil {
		return classification{path: entry.rel, err: errors.Wrapf(err, "reading %s", newAbs)}
	}

	delta, err := deltacodec.Encode(newContents, oldContents)
	if err != nil {
		return classification{path: entry.rel, err: errors.Wrapf(patcherr.ErrCodecFailure, "%s: %v", entry.rel, err)}
	}

	payload := patchtypes.Xdelta(delta)
	return classification{path: entry.rel, kind: patchtypes.KindPatched, orig: oldHash, new: newHash, payload: &payload}
}

type treeEntry struct {
	rel string
	abs string
}

// walkRegularFiles indexes root by relative path, for old-tree lookups.
func walkRegularFiles(root string) (map[string]string, error) {
	entries, err := walkRegularFilesOrdered(root)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(entries))
	for _, e := range entries {
		index[e.rel] = e.abs
	}
	return index, nil
}

// walkRegularFilesOrdered preserves filepath.Walk's lexical order, which
// builder relies on for deterministic output across runs on the same tree.
func walkRegularFilesOrdered(root string) ([]treeEntry, error) {
	var out []treeEntry
	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrapf(patcherr.ErrBuildInputError, "computing relative path for %s: %v", path, err)
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "../") || rel == ".." {
			return errors.Wrapf(patcherr.ErrBuildInputError, "path %s escapes tree root", path)
		}
		if !utf8.ValidString(rel) {
			return errors.Wrapf(patcherr.ErrBuildInputError, "path %s is not valid UTF-8", path)
		}

		out = append(out, treeEntry{rel: rel, abs: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

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

// Package applier implements the self-extracting side of a patch bundle:
// locating the embedded bundle inside the running executable, verifying
// the target tree matches the bundle's expectations, and applying it.
package applier

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/jjayrex/xdelta-patcher-generator/internal/container"
	"github.com/jjayrex/xdelta-patcher-generator/internal/deltacodec"
	"github.com/jjayrex/xdelta-patcher-generator/internal/digest"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patcherr"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchlog"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchtypes"
	"github.com/jjayrex/xdelta-patcher-generator/internal/workerpool"
)

// LoadSelf locates and decodes the bundle appended to the currently running
// executable.
func LoadSelf() (*patchtypes.PatchBundle, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "locating current executable")
	}
	return LoadFrom(exe)
}

// LoadFrom decodes the bundle appended to the executable at path. Split out
// from LoadSelf so tests can exercise it against a synthetic container
// without actually re-executing a binary.
func LoadFrom(path string) (*patchtypes.PatchBundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	body, err := container.ReadBundleBody(f)
	if err != nil {
		return nil, err
	}

	bundle, err := patchtypes.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "decoding embedded bundle")
	}
	return bundle, nil
}

// Verify checks that baseDir matches every pre-image the bundle expects,
// for Unchanged, Patched, and Deleted entries carrying a non-zero
// OriginalHash. Added entries are never verified: the target path may
// legitimately already exist, and Apply will overwrite it.
func Verify(bundle *patchtypes.PatchBundle, baseDir string) error {
	for _, f := range bundle.Manifest.Files {
		if f.Kind.Tag == patchtypes.KindAdded {
			continue
		}
		if f.OriginalHash.IsZero() {
			continue
		}

		full := joinBase(baseDir, f.Path)
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Wrapf(patcherr.ErrPreconditionMissing, "%s", f.Path)
			}
			return errors.Wrapf(err, "statting %s", full)
		}
		if !info.Mode().IsRegular() {
			return errors.Wrapf(patcherr.ErrPreconditionMissing, "%s is not a regular file", f.Path)
		}

		got, err := digest.HashFile(full)
		if err != nil {
			return errors.Wrapf(err, "hashing %s", full)
		}
		if got != f.OriginalHash {
			return errors.Wrapf(patcherr.ErrPreconditionMismatch, "%s", f.Path)
		}
	}
	return nil
}

// Apply performs every file operation the bundle describes against baseDir.
// Files are processed concurrently with no ordering guarantee; the first
// error observed stops remaining queued work from starting, but files
// already in flight finish.
func Apply(bundle *patchtypes.PatchBundle, baseDir string, workers int) error {
	var failed atomic.Bool
	var firstErr atomic.Value // error

	workerpool.Run(len(bundle.Manifest.Files), workers, func(i int) {
		if failed.Load() {
			return
		}
		f := bundle.Manifest.Files[i]
		if err := applyOne(bundle, baseDir, f); err != nil {
			if failed.CompareAndSwap(false, true) {
				firstErr.Store(errors.Wrapf(err, "applying %s", f.Path))
			}
		}
	})

	if v := firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func applyOne(bundle *patchtypes.PatchBundle, baseDir string, f patchtypes.FileEntry) error {
	full := joinBase(baseDir, f.Path)

	switch f.Kind.Tag {
	case patchtypes.KindUnchanged:
		return nil

	case patchtypes.KindDeleted:
		patchlog.Debug(patchlog.Apply, "removing %s", f.Path)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(patcherr.ErrIoFailure, err.Error())
		}
		return nil

	case patchtypes.KindAdded:
		payload := bundle.Entries[f.Kind.Idx]
		if payload.Tag != patchtypes.DataFull {
			return errors.Wrapf(patcherr.ErrInvalidBundle, "%s: expected Full payload", f.Path)
		}
		patchlog.Debug(patchlog.Apply, "adding %s", f.Path)
		return writeAtomic(full, payload.Bytes)

	case patchtypes.KindPatched:
		payload := bundle.Entries[f.Kind.Idx]
		if payload.Tag != patchtypes.DataXdelta {
			return errors.Wrapf(patcherr.ErrInvalidBundle, "%s: expected Xdelta payload", f.Path)
		}
		old, err := os.ReadFile(full)
		if err != nil {
			return errors.Wrap(patcherr.ErrIoFailure, err.Error())
		}
		patchlog.Debug(patchlog.Apply, "patching %s", f.Path)
		newContents, err := deltacodec.Decode(payload.Bytes, old)
		if err != nil {
			return errors.Wrap(patcherr.ErrCodecFailure, err.Error())
		}
		return writeAtomic(full, newContents)

	default:
		return errors.Wrapf(patcherr.ErrInvalidBundle, "%s: unknown kind %s", f.Path, f.Kind.Tag)
	}
}

// writeAtomic writes contents to a sibling temp file in target's directory,
// then renames it over target. The temp name is
// "<target>.part-<pid>-<counter>" rather than a naive extension swap, which
// would let two differently-suffixed targets collide on the same temp name.
func writeAtomic(target string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(patcherr.ErrIoFailure, err.Error())
	}

	pid := os.Getpid()
	var tmp *os.File
	var err error
	for counter := 0; ; counter++ {
		name := fmt.Sprintf("%s.part-%d-%d", target, pid, counter)
		tmp, err = os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			defer func() {
				_ = os.Remove(name)
			}()
			if _, werr := tmp.Write(contents); werr != nil {
				tmp.Close()
				return errors.Wrap(patcherr.ErrIoFailure, werr.Error())
			}
			if cerr := tmp.Close(); cerr != nil {
				return errors.Wrap(patcherr.ErrIoFailure, cerr.Error())
			}
			if rerr := os.Rename(name, target); rerr != nil {
				return errors.Wrap(patcherr.ErrIoFailure, rerr.Error())
			}
			return nil
		}
		if !os.IsExist(err) {
			return errors.Wrap(patcherr.ErrIoFailure, err.Error())
		}
		// name collided with a leftover temp file from a prior crashed
		// run; try the next counter value.
	}
}

// joinBase resolves a manifest path (always "/"-separated) against baseDir.
func joinBase(baseDir, rel string) string {
	rel = filepath.FromSlash(rel)
	if baseDir == "" {
		return rel
	}
	return filepath.Join(baseDir, rel)
}

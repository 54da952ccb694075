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

// Package deltacodec implements the opaque delta encode/decode pair the
// patch pipeline is built against, backed by the xdelta3 command line tool.
package deltacodec

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jjayrex/xdelta-patcher-generator/internal/patcherr"
)

// Encode produces a binary delta that transforms old into new when passed
// to Decode. It shells out to "xdelta3 -e -f -s old new delta", the same
// subprocess-based approach this codebase already uses for bsdiff.
func Encode(newContents, oldContents []byte) ([]byte, error) {
	return runXdelta("-e", "-f", "-s", oldContents, newContents)
}

// Decode applies delta (produced by Encode) to old and returns new.
func Decode(delta, oldContents []byte) ([]byte, error) {
	return runXdelta("-d", "-f", "-s", oldContents, delta)
}

// runXdelta drives the xdelta3 binary through a trio of temp files, since
// xdelta3 operates on paths rather than stdio streams for its source file.
func runXdelta(mode, force, sourceFlag string, source, secondary []byte) ([]byte, error) {
	bin, err := exec.LookPath("xdelta3")
	if err != nil {
		return nil, errors.Wrap(patcherr.ErrCodecFailure, "xdelta3 not found on PATH")
	}

	dir, err := os.MkdirTemp("", "xdelta3-")
	if err != nil {
		return nil, errors.Wrap(err, "creating xdelta3 scratch dir")
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	sourcePath := filepath.Join(dir, "source")
	secondaryPath := filepath.Join(dir, "secondary")
	outputPath := filepath.Join(dir, "output")

	if err := os.WriteFile(sourcePath, source, 0600); err != nil {
		return nil, errors.Wrap(err, "writing xdelta3 source file")
	}
	if err := os.WriteFile(secondaryPath, secondary, 0600); err != nil {
		return nil, errors.Wrap(err, "writing xdelta3 secondary file")
	}

	cmd := exec.Command(bin, mode, force, sourceFlag, sourcePath, secondaryPath, outputPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(patcherr.ErrCodecFailure, "xdelta3 %s failed: %v: %s", mode, err, out)
	}

	result, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading xdelta3 output file")
	}
	return result, nil
}

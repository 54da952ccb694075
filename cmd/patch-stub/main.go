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

// Command patch-stub is the applier half of a patch bundle. It is never
// invoked directly by a user; patch-builder appends a prebuilt copy of this
// binary ahead of an encoded bundle to produce a self-extracting executable.
// Running the resulting executable verifies and applies the bundle against
// the current working directory.
package main

import (
	"log"
	"os"

	"github.com/jjayrex/xdelta-patcher-generator/internal/applier"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchlog"
)

func main() {
	bundle, err := applier.LoadSelf()
	if err != nil {
		fail(err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fail(err)
	}

	if err := applier.Verify(bundle, cwd); err != nil {
		fail(err)
	}

	if err := applier.Apply(bundle, cwd, 0); err != nil {
		fail(err)
	}

	patchlog.Info(patchlog.Apply, "Patched %s from %s to %s",
		bundle.Manifest.Product, bundle.Manifest.FromVersion, bundle.Manifest.ToVersion)
}

func fail(err error) {
	log.Printf("error: %s\n", err)
	os.Exit(1)
}

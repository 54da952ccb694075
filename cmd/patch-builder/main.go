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

// Command patch-builder diffs an old and a new directory tree and writes a
// self-extracting patch executable: the applier stub followed by the
// encoded bundle.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjayrex/xdelta-patcher-generator/internal/builder"
	"github.com/jjayrex/xdelta-patcher-generator/internal/container"
	"github.com/jjayrex/xdelta-patcher-generator/internal/patchlog"
)

// Version is the only trace of "resource metadata" this module carries —
// the original ships a real Windows .rsrc version resource via winres; this
// build has no PE resource section at all, just this string surfaced
// through --version.
const Version = "1.0.0"

var flags = struct {
	product     string
	fromVersion string
	toVersion   string
	deleteExtra bool
	workers     int
}{}

var rootCmd = &cobra.Command{
	Use:     "patch-builder <old-dir> <new-dir> <output>",
	Short:   "Build a self-extracting patch executable from two directory trees",
	Version: Version,
	Args:    cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(args[0], args[1], args[2]); err != nil {
			fail(err)
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.product, "product", "", "manifest product name")
	rootCmd.Flags().StringVar(&flags.fromVersion, "from-version", "", "manifest source version")
	rootCmd.Flags().StringVar(&flags.toVersion, "to-version", "", "manifest target version")
	rootCmd.Flags().BoolVarP(&flags.deleteExtra, "delete-extra", "d", false,
		"include Deleted entries for files absent from new-dir")
	rootCmd.Flags().IntVar(&flags.workers, "workers", 0,
		"classification worker pool size (default: runtime.NumCPU())")
}

func run(oldDir, newDir, output string) error {
	bundle, err := builder.Build(oldDir, newDir, builder.BuildOptions{
		Product:     flags.product,
		FromVersion: flags.fromVersion,
		ToVersion:   flags.toVersion,
		DeleteExtra: flags.deleteExtra,
		Workers:     flags.workers,
	})
	if err != nil {
		return err
	}

	out, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := container.Write(out, container.Stub, bundle); err != nil {
		return err
	}

	patchlog.Info(patchlog.Build, "wrote %s (%d file entries, %d payloads)",
		output, len(bundle.Manifest.Files), len(bundle.Entries))
	return nil
}

func fail(err error) {
	log.Printf("error: %s\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

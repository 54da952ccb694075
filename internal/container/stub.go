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

package container

import _ "embed"

//go:generate go build -o stub.bin ../../cmd/patch-stub

// Stub is the prebuilt cmd/patch-stub binary, regenerated by `go generate`
// whenever cmd/patch-stub changes. It is appended verbatim ahead of the
// bundle body; patch-builder never modifies these bytes.
//
//go:embed stub.bin
var Stub []byte

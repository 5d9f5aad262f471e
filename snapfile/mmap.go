// Copyright 2026 Dolthub, Inc.
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

package snapfile

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// Mapped is a snapshot file mapped read-only into memory. The payload of an
// uncompressed file points into the mapping and is only valid until Close.
type Mapped struct {
	*File
	f  *os.File
	mm mmap.MMap
}

// Open maps the file at |path| and decodes it.
func Open(path string) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening snapshot file")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "opening snapshot file")
	}
	if fi.Size() == 0 {
		f.Close()
		_, err := Decode(nil)
		return nil, err
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mapping %s", path)
	}
	sf, err := Decode(mm)
	if err != nil {
		_ = mm.Unmap()
		f.Close()
		return nil, err
	}
	return &Mapped{File: sf, f: f, mm: mm}, nil
}

// Close unmaps the file.
func (m *Mapped) Close() error {
	err := m.mm.Unmap()
	if closeErr := m.f.Close(); err == nil {
		err = closeErr
	}
	return err
}

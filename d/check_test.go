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

package d

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChkPanics(t *testing.T) {
	assert.Panics(t, func() { Chk.True(false) })
	assert.NotPanics(t, func() { Chk.True(true) })
	assert.Panics(t, func() { PanicIfFalse(false) })
	assert.Panics(t, func() { PanicIfTrue(true) })
	assert.Panics(t, func() { PanicIfError(errors.New("boom")) })
	assert.NotPanics(t, func() { PanicIfError(nil) })
}

func TestTryRecoversExp(t *testing.T) {
	assert := assert.New(t)

	err := Try(func() { Exp.Fail("nope") })
	assert.Error(err)
	assert.Contains(err.Error(), "nope")

	sentinel := errors.New("sentinel")
	err = Try(func() { PanicRecoverable(sentinel) })
	assert.Equal(sentinel, err)

	assert.NoError(Try(func() {}))
}

func TestTryRethrowsFatal(t *testing.T) {
	assert.Panics(t, func() {
		_ = Try(func() { Panic("fatal %d", 1) })
	})
}

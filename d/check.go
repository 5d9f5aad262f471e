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

// Package d implements the invariant checks used throughout heapsnap. A
// failed check is a codec defect: the heap being written or read can no
// longer be trusted, so checks panic instead of returning errors.
package d

import (
	"errors"
	"fmt"

	"github.com/stretchr/testify/assert"
)

var (
	// Chk panics on any failed assertion.
	Chk = assert.New(&panicker{})
	// Exp provides the same API as Chk, but the resulting panics can be caught by d.Try()
	Exp = assert.New(&recoverablePanicker{})
)

type panicker struct {
}

func (s panicker) Errorf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

type recoverablePanicker struct {
}

func (s recoverablePanicker) Errorf(format string, args ...interface{}) {
	panic(WrappedError{errors.New(fmt.Sprintf(format, args...))})
}

// WrappedError is the panic value produced by Exp and PanicRecoverable. Try
// turns it back into an ordinary error.
type WrappedError struct {
	Cause error
}

func (we WrappedError) Error() string {
	return we.Cause.Error()
}

func (we WrappedError) Unwrap() error {
	return we.Cause
}

// Panic panics with a formatted message.
func Panic(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// PanicIfError panics with |err| if it is non-nil.
func PanicIfError(err error) {
	if err != nil {
		panic(err)
	}
}

// PanicIfTrue panics if |b| is true.
func PanicIfTrue(b bool) {
	if b {
		panic("expected false")
	}
}

// PanicIfFalse panics if |b| is false.
func PanicIfFalse(b bool) {
	if !b {
		panic("expected true")
	}
}

// PanicRecoverable panics with |err| in a form that Try will recover.
func PanicRecoverable(err error) {
	panic(WrappedError{err})
}

// Try calls |f|. If |f| panics through Exp or PanicRecoverable the panic is
// recovered and returned as an error. Any other panic is re-raised.
func Try(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if we, ok := r.(WrappedError); ok {
				err = we.Cause
				return
			}
			panic(r)
		}
	}()
	f()
	return nil
}

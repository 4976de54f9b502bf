// Copyright 2019 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/lispms/lispms/pkg/private/serrors"
)

type testErrType struct {
	msg string
}

func (e *testErrType) Error() string {
	return e.msg
}

func TestWrap(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		err := serrors.New("simple err")
		wrapped := serrors.Wrap("outer", err, "eid", "10.0.0.0/8")
		assert.ErrorIs(t, wrapped, err)
		assert.ErrorIs(t, wrapped, wrapped)
	})
	t.Run("As", func(t *testing.T) {
		err := &testErrType{msg: "test err"}
		wrapped := serrors.WrapNoStack("outer", err, "someCtx", "someVal")
		var errAs *testErrType
		require.True(t, errors.As(wrapped, &errAs))
		assert.Equal(t, err, errAs)
	})
	t.Run("message", func(t *testing.T) {
		err := serrors.WrapNoStack("outer", errors.New("inner"), "b", 2, "a", 1)
		assert.Equal(t, "outer {a=1; b=2}: inner", err.Error())
	})
}

func TestJoin(t *testing.T) {
	sentinel := errors.New("sentinel")
	cause := serrors.New("cause")
	joined := serrors.Join(sentinel, cause, "vni", 7)
	assert.ErrorIs(t, joined, sentinel)
	assert.ErrorIs(t, joined, cause)
	assert.ErrorIs(t, joined, joined)
	assert.ErrorIs(t, serrors.Wrap("outer", joined), joined)
	assert.Equal(t, "sentinel {vni=7}: cause", joined.Error())

	assert.NoError(t, serrors.Join(nil, nil))
	assert.NoError(t, serrors.JoinNoStack(nil, nil))
}

func TestStackOnlyOnInnermost(t *testing.T) {
	inner := serrors.New("inner")
	outer := serrors.Wrap("outer", inner)

	type stackTracer interface {
		StackTrace() serrors.StackTrace
	}
	var st stackTracer
	require.True(t, errors.As(inner, &st))
	assert.NotEmpty(t, st.StackTrace())
	st, ok := outer.(stackTracer)
	require.True(t, ok)
	assert.Empty(t, st.StackTrace())
}

func TestList(t *testing.T) {
	var l serrors.List
	assert.NoError(t, l.ToError())
	l = append(l, errors.New("one"), serrors.WrapNoStack("two", nil))
	assert.Equal(t, "[ one; two ]", l.ToError().Error())

	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, enc.AddArray("errs", l))
	assert.Len(t, enc.Fields["errs"], 2)
}

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.0/internal/x/dslx/fxcore.go
//

package sockpipe

import "context"

// Func is one step of pipe construction: it takes an input and either
// produces a result or fails.
//
// Resource cleanup contract: when a Func receives a closeable resource as
// input and fails, it closes that resource before returning. A failed
// [*PipeFunc] therefore never leaves a socket open, and neither does a
// pipeline built with [Compose2].
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter turns a plain function into a [Func].
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}

// Unit is the input of a [Func] that needs none, such as [*PipeFunc].
type Unit struct{}

// Compose2 runs op1 and then feeds its result to op2.
//
// If op1 fails, op2 is not called and the error is returned as is.
func Compose2[A, B, C any](op1 Func[A, B], op2 Func[B, C]) Func[A, C] {
	return &compose2[A, B, C]{op1, op2}
}

type compose2[A, B, C any] struct {
	op1 Func[A, B]
	op2 Func[B, C]
}

func (c *compose2[A, B, C]) Call(ctx context.Context, input A) (C, error) {
	res, err := c.op1.Call(ctx, input)
	if err != nil {
		var zero C
		return zero, err
	}
	return c.op2.Call(ctx, res)
}

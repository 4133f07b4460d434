package main

import (
	"context"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/oriys/pulsar/envelope"
	"github.com/oriys/pulsar/tooldef"
)

// The built-in echo tool exercises every outcome path: normal results,
// delayed results that cross the deferral boundary, worker failures, and
// input validation errors. It is what the binary serves out of the box and
// what integration setups point their dispatchers at.

type echoInput struct {
	// Echo is returned unchanged.
	Echo string `json:"echo"`

	// SleepMs delays the reply, to force the deferred path.
	SleepMs int `json:"sleep_ms,omitempty"`

	// Fail makes the worker panic, Reject makes it refuse the input.
	Fail   bool `json:"fail,omitempty"`
	Reject bool `json:"reject,omitempty"`
}

type echoOutput struct {
	Echo  string `json:"echo"`
	RanMs int64  `json:"ran_ms"`
}

func echoTool() *tooldef.Tool {
	in := openapi3.NewObjectSchema().
		WithProperty("echo", openapi3.NewStringSchema()).
		WithProperty("sleep_ms", openapi3.NewIntegerSchema()).
		WithProperty("fail", openapi3.NewBoolSchema()).
		WithProperty("reject", openapi3.NewBoolSchema())
	in.Title = "EchoInput"
	out := openapi3.NewObjectSchema().
		WithProperty("echo", openapi3.NewStringSchema()).
		WithProperty("ran_ms", openapi3.NewIntegerSchema())
	out.Title = "EchoOutput"

	return &tooldef.Tool{
		Name:    "echo",
		Summary: "Echoes its input back, optionally after a delay",
		Description: "Returns the echo field unchanged. Set sleep_ms to delay the reply, " +
			"fail to force an execution error, or reject to force a validation error.",
		NewInput: func() any { return &echoInput{} },
		Worker: func(ctx context.Context, in any) (any, error) {
			req := in.(*echoInput)
			if req.Reject {
				return nil, envelope.InvalidInput("echo: input rejected on request")
			}
			start := time.Now()
			if req.SleepMs > 0 {
				select {
				case <-time.After(time.Duration(req.SleepMs) * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if req.Fail {
				panic("echo: failing on request")
			}
			return &echoOutput{Echo: req.Echo, RanMs: time.Since(start).Milliseconds()}, nil
		},
		Input:  in,
		Output: out,
	}
}

package executor

import "context"

// JobContext carries per-invocation metadata into the worker. It replaces
// ambient globals: outbound calls made from inside a worker take what they
// need from here instead of a process-wide client patch.
type JobContext struct {
	// JobID is the identifier minted at submission.
	JobID string

	// Authorization is the credential of the submitting request, if any,
	// to be forwarded on outbound calls the worker makes.
	Authorization string

	// Context is the route-level execution context supplied via
	// WithContext. Constant across jobs on the same route.
	Context any
}

type ctxKey int

const (
	jobContextKey ctxKey = iota
	authorizationKey
)

// WithJobContext injects jc for a worker invocation. Submit does this on
// the request/poll path; the batch loop does it for direct invocations.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, jobContextKey, jc)
}

// JobContextFrom returns the JobContext injected at the worker-call
// boundary, or nil outside a job invocation.
func JobContextFrom(ctx context.Context) *JobContext {
	jc, _ := ctx.Value(jobContextKey).(*JobContext)
	return jc
}

// WithAuthorization records the caller's credential for the duration of a
// submission. The HTTP adapter and the batch loop set it; Submit copies it
// into the JobContext.
func WithAuthorization(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authorizationKey, token)
}

// AuthorizationFrom returns the credential recorded with WithAuthorization.
func AuthorizationFrom(ctx context.Context) string {
	token, _ := ctx.Value(authorizationKey).(string)
	return token
}

// Package httpclient provides an HTTP client for calls a worker makes on
// behalf of a job. The transport reads the invocation's job context and
// stamps outbound requests with the job id and the caller's credential, so
// downstream services can attribute and authorize the call without any
// process-wide client state.
package httpclient

import (
	"net/http"
	"time"

	"github.com/oriys/pulsar/executor"
)

const jobIDHeader = "Ivcap-Job-Id"

// Transport injects job metadata into outbound requests.
type Transport struct {
	// Base is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper. Explicit headers on the request
// always win over injected ones.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	jc := executor.JobContextFrom(req.Context())
	if jc == nil {
		return base.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	if req.Header.Get(jobIDHeader) == "" && jc.JobID != "" {
		req.Header.Set(jobIDHeader, jc.JobID)
	}
	if req.Header.Get("Authorization") == "" && jc.Authorization != "" {
		req.Header.Set("Authorization", jc.Authorization)
	}
	return base.RoundTrip(req)
}

// New returns a client whose requests carry the job context of the
// invocation they are made from. Pass the worker's ctx when building
// requests for the headers to be injected.
func New() *http.Client {
	return &http.Client{
		Transport: &Transport{},
		Timeout:   60 * time.Second,
	}
}

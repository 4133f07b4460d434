// Package toolserver exposes a tool over the request/poll HTTP contract:
// submit on POST, collect on GET with a job identifier, describe on plain
// GET. A submission that outlives the bounded wait is answered with 204 plus
// Location and Retry-Later headers instead of an error; the client polls the
// Location until the outcome is ready or evicted.
package toolserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oriys/pulsar/envelope"
	"github.com/oriys/pulsar/executor"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/tooldef"
)

// errorBody is the JSON shape of client errors.
type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Route binds a tool and its executor to a path prefix.
type Route struct {
	prefix string
	tool   *tooldef.Tool
	exec   *executor.Executor
}

// Register mounts the tool's three endpoints on mux under prefix:
// POST {prefix}, GET {prefix}/{job_id}, and GET {prefix}.
func Register(mux *http.ServeMux, prefix string, tool *tooldef.Tool, exec *executor.Executor) *Route {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "/"
	}
	rt := &Route{prefix: prefix, tool: tool, exec: exec}

	if prefix == "/" {
		mux.HandleFunc("POST /{$}", rt.submit)
		mux.HandleFunc("GET /{job_id}", rt.collect)
		mux.HandleFunc("GET /{$}", rt.describe)
	} else {
		mux.HandleFunc("POST "+prefix, rt.submit)
		mux.HandleFunc("GET "+prefix+"/{job_id}", rt.collect)
		mux.HandleFunc("GET "+prefix, rt.describe)
	}
	logging.Op().Info("tool route registered", "tool", tool.Name, "prefix", prefix)
	return rt
}

// submit handles POST {prefix}.
func (rt *Route) submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeClientError(w, fmt.Sprintf("reading request body: %v", err))
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	in, err := rt.tool.DecodeInput(body)
	if err != nil {
		writeClientError(w, err.Error())
		return
	}

	jobID := newJobID()
	ctx := executor.WithAuthorization(r.Context(), r.Header.Get("Authorization"))

	h, err := rt.exec.Submit(ctx, in, jobID)
	if err != nil {
		// Duplicate identifiers cannot come from user input; this is an
		// internal defect.
		logging.Op().Error("submit failed", "tool", rt.tool.Name, "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out, ok := h.Await(r.Context(), rt.exec.MaxWait())
	if !ok {
		rt.writeDeferred(w, jobID)
		return
	}
	rt.writeOutcome(w, out)
}

// collect handles GET {prefix}/{job_id}.
func (rt *Route) collect(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	out, err := rt.exec.Lookup(r.Context(), jobID)
	switch {
	case err == nil:
		rt.writeOutcome(w, out)
	case errors.Is(err, executor.ErrPending):
		rt.writeDeferred(w, jobID)
	case errors.Is(err, executor.ErrNotFound):
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "job %s can't be found. It either never existed or its result is no longer cached.", jobID)
	default:
		logging.Op().Error("lookup failed", "tool", rt.tool.Name, "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// describe handles GET {prefix}.
func (rt *Route) describe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rt.tool.Definition())
}

// writeDeferred sends the "accepted, not yet done" response. This is an
// expected outcome of the protocol, not a failure.
func (rt *Route) writeDeferred(w http.ResponseWriter, jobID string) {
	metrics.RecordDeferred(rt.tool.Name)
	location := rt.prefix + "/" + jobID
	if rt.prefix == "/" {
		location = "/" + jobID
	}
	w.Header().Set("Location", location)
	w.Header().Set("Retry-Later", fmt.Sprintf("%d", int(rt.exec.RefreshInterval().Seconds())))
	w.WriteHeader(http.StatusNoContent)
}

// writeOutcome maps a ready outcome onto the HTTP response. Validation
// failures become 400; any other execution error is delivered as a
// well-formed error envelope with status 200, never a 5xx.
func (rt *Route) writeOutcome(w http.ResponseWriter, out envelope.Outcome) {
	if out.IsError() && out.Err.IsInvalidInput() {
		writeClientError(w, out.Err.Error)
		return
	}
	w.Header().Set("Content-Type", out.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(out.Body())
}

func writeClientError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(errorBody{Message: msg, Code: http.StatusBadRequest})
}

// newJobID mints a time-sortable, globally unique job identifier.
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; fall back to v4.
		return uuid.NewString()
	}
	return id.String()
}

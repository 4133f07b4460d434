package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oriys/pulsar/envelope"
	"github.com/oriys/pulsar/executor"
	"github.com/oriys/pulsar/tooldef"
)

type echoInput struct {
	Text  string `json:"text"`
	Sleep int    `json:"sleep_ms,omitempty"`
	Fail  string `json:"fail,omitempty"`
	Bad   string `json:"bad,omitempty"`
}

func echoTool() *tooldef.Tool {
	return &tooldef.Tool{
		Name:     "echo",
		Summary:  "Echoes its input back.",
		NewInput: func() any { return &echoInput{} },
		Worker: func(ctx context.Context, in any) (any, error) {
			p := in.(*echoInput)
			if p.Sleep > 0 {
				time.Sleep(time.Duration(p.Sleep) * time.Millisecond)
			}
			if p.Bad != "" {
				return nil, envelope.InvalidInput("bad value: %s", p.Bad)
			}
			if p.Fail != "" {
				panic(p.Fail)
			}
			return map[string]string{"text": p.Text}, nil
		},
	}
}

func newTestServer(t *testing.T, opts ...executor.Option) (*httptest.Server, *executor.Executor) {
	t.Helper()
	tool := echoTool()
	exec := executor.New(tool.Name, tool.Worker, opts...)
	t.Cleanup(exec.Close)

	mux := NewMux(ServerConfig{Version: "test"})
	Register(mux, "/echo", tool, exec)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, exec
}

func TestSubmit_FastPath(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out["text"] != "hi" {
		t.Fatalf("wrong output: %v", out)
	}
}

func TestSubmit_DeferredThenCollect(t *testing.T) {
	srv, _ := newTestServer(t, executor.WithMaxWait(0), executor.WithRefreshInterval(3*time.Second))

	resp, err := http.Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"text":"later","sleep_ms":50}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/echo/") {
		t.Fatalf("bad Location header: %q", location)
	}
	if resp.Header.Get("Retry-Later") != "3" {
		t.Fatalf("bad Retry-Later header: %q", resp.Header.Get("Retry-Later"))
	}

	// Polling while the worker still runs repeats the deferred response.
	early, err := http.Get(srv.URL + location)
	if err != nil {
		t.Fatalf("early GET failed: %v", err)
	}
	early.Body.Close()
	if early.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 while pending, got %d", early.StatusCode)
	}
	if early.Header.Get("Location") != location {
		t.Fatalf("pending poll lost Location header: %q", early.Header.Get("Location"))
	}

	time.Sleep(100 * time.Millisecond)

	done, err := http.Get(srv.URL + location)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer done.Body.Close()
	if done.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after completion, got %d", done.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(done.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out["text"] != "later" {
		t.Fatalf("wrong output: %v", out)
	}
}

func TestCollect_UnknownJob(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/echo/no-such-job")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSubmit_WorkerPanicYieldsErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"fail":"exploded"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	// A worker failure is a stored outcome, never a 5xx leak.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with error envelope, got %d", resp.StatusCode)
	}
	var ee envelope.ExecError
	if err := json.NewDecoder(resp.Body).Decode(&ee); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if ee.Schema != envelope.ErrorSchema {
		t.Fatalf("missing error schema tag: %q", ee.Schema)
	}
	if ee.Error != "exploded" {
		t.Fatalf("wrong error message: %q", ee.Error)
	}
}

func TestSubmit_ValidationErrorMapsTo400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"bad":"value"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var eb errorBody
	if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if eb.Code != http.StatusBadRequest || eb.Message == "" {
		t.Fatalf("malformed error body: %+v", eb)
	}
}

func TestSubmit_MalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"text": 12`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDescribe(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/echo")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var def tooldef.Definition
	if err := json.NewDecoder(resp.Body).Decode(&def); err != nil {
		t.Fatalf("decode definition: %v", err)
	}
	if def.Name != "echo" || def.Schema != tooldef.DefinitionSchema {
		t.Fatalf("bad definition: %+v", def)
	}
}

func TestHealtz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/_healtz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["version"] != "test" {
		t.Fatalf("wrong version: %v", body)
	}
}

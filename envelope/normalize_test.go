package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type greeting struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func TestNormalize_Struct(t *testing.T) {
	in := greeting{Message: "hello", Count: 3}
	out := Normalize(in, nil)

	if out.IsError() {
		t.Fatalf("unexpected error outcome: %+v", out.Err)
	}
	if out.ContentType() != "application/json" {
		t.Fatalf("expected application/json, got %s", out.ContentType())
	}

	var back greeting
	if err := json.Unmarshal(out.Body(), &back); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if back != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", back, in)
	}
	if out.Result.Raw == nil {
		t.Fatal("expected decoded value to be retained")
	}
}

func TestNormalize_Text(t *testing.T) {
	out := Normalize("plain text result", nil)
	if out.ContentType() != "text/plain" {
		t.Fatalf("expected text/plain, got %s", out.ContentType())
	}
	if string(out.Body()) != "plain text result" {
		t.Fatalf("body altered: %q", out.Body())
	}
}

func TestNormalize_Bytes(t *testing.T) {
	raw := []byte{0x1, 0x2, 0x3}
	out := Normalize(raw, nil)
	if out.ContentType() != "application/octet-stream" {
		t.Fatalf("expected octet-stream, got %s", out.ContentType())
	}
	if !bytes.Equal(out.Body(), raw) {
		t.Fatalf("body altered: %v", out.Body())
	}
}

func TestNormalize_Reader(t *testing.T) {
	out := Normalize(strings.NewReader("stream contents"), nil)
	if out.IsError() {
		t.Fatalf("unexpected error: %+v", out.Err)
	}
	if string(out.Result.Content) != "stream contents" {
		t.Fatalf("stream not fully drained: %q", out.Result.Content)
	}
	if out.ContentType() != "application/octet-stream" {
		t.Fatalf("expected octet-stream, got %s", out.ContentType())
	}
}

func TestNormalize_PrebuiltResult(t *testing.T) {
	out := Normalize(&Result{ContentType: "image/png", Content: []byte("png-bytes")}, nil)
	if out.ContentType() != "image/png" {
		t.Fatalf("explicit content type not preserved: %s", out.ContentType())
	}
	if string(out.Body()) != "png-bytes" {
		t.Fatalf("explicit content not preserved: %q", out.Body())
	}
}

func TestNormalize_Error(t *testing.T) {
	out := Normalize(nil, errors.New("boom"))
	if !out.IsError() {
		t.Fatal("expected error outcome")
	}
	if out.Err.Schema != ErrorSchema {
		t.Fatalf("missing schema tag: %q", out.Err.Schema)
	}
	if out.Err.Error != "boom" {
		t.Fatalf("unexpected message: %q", out.Err.Error)
	}
	if out.Err.Type != "errorString" {
		t.Fatalf("unexpected error kind: %q", out.Err.Type)
	}
	if out.ContentType() != "application/json" {
		t.Fatalf("error envelope must be JSON, got %s", out.ContentType())
	}
}

func TestNormalize_InvalidInput(t *testing.T) {
	out := Normalize(nil, InvalidInput("count must be positive, got %d", -1))
	if !out.IsError() {
		t.Fatal("expected error outcome")
	}
	if !out.Err.IsInvalidInput() {
		t.Fatalf("validation failure not marked as such: type=%q", out.Err.Type)
	}
}

func TestNormalize_UnserializableValue(t *testing.T) {
	out := Normalize(make(chan int), nil)
	if !out.IsError() {
		t.Fatal("expected serialization failure to become an error envelope")
	}
	if out.Err.Schema != ErrorSchema {
		t.Fatalf("missing schema tag: %q", out.Err.Schema)
	}
}

func TestRun_PanicCaptured(t *testing.T) {
	out := Run(func() (any, error) {
		panic("worker exploded")
	})
	if !out.IsError() {
		t.Fatal("expected panic to become an error outcome")
	}
	if out.Err.Error != "worker exploded" {
		t.Fatalf("unexpected message: %q", out.Err.Error)
	}
	if out.Err.Traceback == "" {
		t.Fatal("expected a captured stack trace")
	}
}

func TestOutcome_EncodeDecode(t *testing.T) {
	orig := Normalize(greeting{Message: "hi", Count: 1}, nil)
	data, err := orig.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(back.Body(), orig.Body()) {
		t.Fatalf("body not byte-identical after round trip")
	}
	if back.ContentType() != orig.ContentType() {
		t.Fatalf("content type changed: %s != %s", back.ContentType(), orig.ContentType())
	}

	errOut := Normalize(nil, errors.New("stored failure"))
	data, err = errOut.Encode()
	if err != nil {
		t.Fatalf("encode error outcome: %v", err)
	}
	back, err = Decode(data)
	if err != nil {
		t.Fatalf("decode error outcome: %v", err)
	}
	if !back.IsError() || back.Err.Error != "stored failure" {
		t.Fatalf("error envelope not preserved: %+v", back)
	}
}

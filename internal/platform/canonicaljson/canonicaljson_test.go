package canonicaljson

import (
	"bytes"
	"testing"
)

func TestCanonicalizeSortsKeysRecursively(t *testing.T) {
	a := []byte(`{"b": {"z": 1, "a": 2}, "a": [1, {"y": true, "x": null}]}`)
	b := []byte(`{"a":[1,{"x":null,"y":true}],"b":{"a":2,"z":1}}`)

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Fatalf("expected identical canonical output:\n%s\n%s", ca, cb)
	}
	want := `{"a":[1,{"x":null,"y":true}],"b":{"a":2,"z":1}}`
	if string(ca) != want {
		t.Fatalf("expected %s, got %s", want, ca)
	}
}

func TestCanonicalizePreservesNumberLiterals(t *testing.T) {
	out, err := Canonicalize([]byte(`{"score": 0.25, "count": 12}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != `{"count":12,"score":0.25}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestCanonicalizeDoesNotEscapeHTML(t *testing.T) {
	out, err := Canonicalize([]byte(`{"note":"a<b & c>d"}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != `{"note":"a<b & c>d"}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestCanonicalizeNormalizesUnicode(t *testing.T) {
	// e + combining acute vs precomposed e-acute must hash identically.
	composed := []byte("{\"name\":\"café\"}")
	decomposed := []byte("{\"name\":\"café\"}")

	a, err := Canonicalize(composed)
	if err != nil {
		t.Fatalf("canonicalize composed: %v", err)
	}
	b, err := Canonicalize(decomposed)
	if err != nil {
		t.Fatalf("canonicalize decomposed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected NFC-equal output, got %s vs %s", a, b)
	}
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	if _, err := Canonicalize([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestCanonicalizeEscapesControlCharacters(t *testing.T) {
	out, err := Canonicalize([]byte(`{"a":"line\nbreak\u0007"}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != `{"a":"line\nbreak\u0007"}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestMarshalStructValue(t *testing.T) {
	type payload struct {
		Zulu  int    `json:"zulu"`
		Alpha string `json:"alpha"`
	}
	out, err := Marshal(payload{Zulu: 1, Alpha: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"alpha":"x","zulu":1}` {
		t.Fatalf("unexpected output %s", out)
	}
}

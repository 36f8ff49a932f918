package jsonval

import (
	"testing"
)

func TestParseMarshalRoundTrip(t *testing.T) {
	cases := []string{
		`null`,
		`true`,
		`false`,
		`"hi"`,
		`0`,
		`-2.5`,
		`9223372036854775807`,
		`18446744073709551615`,
		`[]`,
		`[1,"two",null,{"a":false}]`,
		`{}`,
		`{"b":1,"a":2}`,
		`{"nested":{"deep":[{"x":"y"}]}}`,
	}
	for _, in := range cases {
		v, err := Parse([]byte(in))
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", in, err)
		}
		if got := string(Marshal(v)); got != in {
			t.Fatalf("round trip of %s produced %s", in, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{``, `{`, `[1,]`, `{"a":}`, `1 2`, `tru`} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("expected Parse(%q) to fail", in)
		}
	}
}

func TestNumberLiteralPreserved(t *testing.T) {
	v, err := Parse([]byte(`9223372036854775807`))
	if err != nil {
		t.Fatal(err)
	}
	n, ok := v.(Number)
	if !ok {
		t.Fatalf("expected Number, got %T", v)
	}
	if string(n) != "9223372036854775807" {
		t.Fatalf("literal lost: %s", n)
	}
}

func TestObjectOrderAndLookup(t *testing.T) {
	obj := NewObject(3)
	obj.Set("z", Number("1"))
	obj.Set("a", Number("2"))
	obj.Set("m", Number("3"))
	obj.Set("z", Number("9")) // replace keeps position

	if got := string(Marshal(obj)); got != `{"z":9,"a":2,"m":3}` {
		t.Fatalf("insertion order lost: %s", got)
	}
	if v, ok := obj.Get("a"); !ok || string(v.(Number)) != "2" {
		t.Fatalf("lookup failed")
	}
	if _, ok := obj.Get("missing"); ok {
		t.Fatalf("missing key must not resolve")
	}
	if obj.Len() != 3 {
		t.Fatalf("expected 3 members, got %d", obj.Len())
	}
}

func TestStringEscaping(t *testing.T) {
	got := string(Marshal(String("a\"b\\c\nd")))
	if got != `"a\"b\\c\nd"` {
		t.Fatalf("unexpected escaping: %s", got)
	}
}

func TestMarshalIndent(t *testing.T) {
	obj := NewObject(1)
	obj.Set("a", Bool(true))
	got := string(MarshalIndent(obj, "  "))
	want := "{\n  \"a\": true\n}"
	if got != want {
		t.Fatalf("indent mismatch:\n got %q\nwant %q", got, want)
	}
}

package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDocumentAcceptsGeneratorOutput(t *testing.T) {
	raw := []byte(`{
  "de.adorsys.beanval2json.test.model.Income.salary": {
    "decimalMin": {"value": "500,00", "inclusive": true},
    "digits": {"integer": 4, "fraction": 2}
  },
  "de.adorsys.beanval2json.test.model.Income.bonus": {
    "min": {"value": 50, "message": "at least 50"},
    "email": {"regexp": ".+@.+"}
  },
  "eMail": {"notNull": {"message": "Please enter your eMail-Address", "groups": ["a.B"]}}
}`)

	doc, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	salary, ok := doc.Lookup("de.adorsys.beanval2json.test.model.Income.salary")
	if !ok {
		t.Fatal("salary constraints missing")
	}
	if got := salary["decimalMin"].Value; got != "500,00" {
		t.Fatalf("decimalMin value = %q", got)
	}
	if !salary["decimalMin"].InclusiveOrDefault() {
		t.Fatal("expected inclusive decimalMin")
	}
	if got := *salary["digits"].Fraction; got != 2 {
		t.Fatalf("fraction = %d", got)
	}

	bonus := doc["de.adorsys.beanval2json.test.model.Income.bonus"]
	want := Descriptor{Value: "50", Message: "at least 50"}
	if diff := cmp.Diff(want, bonus["min"]); diff != "" {
		t.Fatalf("min descriptor mismatch (-want +got):\n%s", diff)
	}
	if _, ok := bonus["email"]; !ok {
		t.Fatal("unknown kinds must be kept in the document")
	}

	if _, ok := doc.Lookup("missing"); ok {
		t.Fatal("lookup of missing key reported ok")
	}
}

func TestParseDocumentRejectsMalformedInput(t *testing.T) {
	for _, raw := range []string{`[]`, `{"a": {"min": {"value": true}}}`, `not json`} {
		if _, err := ParseDocument([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestParseDocumentKeepsUnknownKindsOfAnyShape(t *testing.T) {
	raw := []byte(`{"person.email":{"email":true,"notNull":{"message":"required"},"custom":["a",1]}}`)
	doc, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fc := doc["person.email"]
	if got := fc["notNull"].Message; got != "required" {
		t.Fatalf("notNull message = %q", got)
	}
	if got := string(fc["email"].Opaque); got != "true" {
		t.Fatalf("email opaque = %q", got)
	}
	if got := string(fc["custom"].Opaque); got != `["a",1]` {
		t.Fatalf("custom opaque = %q", got)
	}

	if _, err := ParseDocument([]byte(`{"person.email":{"notNull":true}}`)); err == nil {
		t.Fatal("known kind with a malformed descriptor must fail")
	}
}

func TestParseDocumentNull(t *testing.T) {
	doc, err := ParseDocument([]byte(`null`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc == nil || len(doc) != 0 {
		t.Fatalf("expected empty document, got %#v", doc)
	}
}

func TestInclusiveDefaultsToTrue(t *testing.T) {
	off := false
	if !(Descriptor{}).InclusiveOrDefault() {
		t.Fatal("missing inclusive must default to true")
	}
	if (Descriptor{Inclusive: &off}).InclusiveOrDefault() {
		t.Fatal("explicit false must be honored")
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("person-form.v2"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, name := range []string{"", "a/b", "with space"} {
		if err := ValidateName(name); err != ErrInvalidName {
			t.Fatalf("name %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

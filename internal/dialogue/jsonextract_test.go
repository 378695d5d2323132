package dialogue

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"reasongate/internal/reasonerr"
)

func TestExtractJSONBlock(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"bare object",
			`{"a":1}`,
			`{"a":1}`,
		},
		{
			"object inside prose",
			`Here is my analysis: {"a":1} hope that helps.`,
			`{"a":1}`,
		},
		{
			"nested objects",
			`prefix {"a":{"b":{"c":3}}} suffix`,
			`{"a":{"b":{"c":3}}}`,
		},
		{
			"braces inside strings",
			`note {"msg":"use {x} here","ok":true} end`,
			`{"msg":"use {x} here","ok":true}`,
		},
		{
			"escaped quote inside string",
			`{"msg":"she said \"hi {there}\"","n":1}`,
			`{"msg":"she said \"hi {there}\"","n":1}`,
		},
		{
			"first of several objects",
			`{"first":1} and later {"second":2}`,
			`{"first":1}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ExtractJSONBlock(c.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestExtractJSONBlockFailures(t *testing.T) {
	for _, in := range []string{
		"",
		"no json here at all",
		`{"unterminated": true`,
		"stray } before anything",
	} {
		_, err := ExtractJSONBlock(in)
		if !reasonerr.Is(err, reasonerr.CodeAPIParse) {
			t.Errorf("ExtractJSONBlock(%q): expected API_PARSE_ERROR, got %v", in, err)
		}
	}
}

func TestParseJSONBlockFromProse(t *testing.T) {
	response := `Based on the evidence, here is my conclusion:
{"rootCauses":[{"type":"N+1","description":"query per row","evidence":["repo.go:42"],"confidence":0.9,"fixStrategy":"batch the query"}], "recommendations":{"immediate":["x"]}}
Let me know if you need more detail.`

	var rr remoteResult
	if err := ParseJSONBlock(response, &rr); err != nil {
		t.Fatalf("ParseJSONBlock failed: %v", err)
	}

	got := mapRemoteResult(rr)
	want := &AnalysisResult{
		Status: "success",
		RootCauses: []RootCause{{
			Type:        "N+1",
			Description: "query per row",
			Evidence:    []string{"repo.go:42"},
			Confidence:  0.9,
			FixStrategy: "batch the query",
		}},
		ImmediateActions: []Action{{Description: "x", Priority: "high"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mapped result mismatch (-want +got):\n%s", diff)
	}
}

func TestParseJSONBlockMalformed(t *testing.T) {
	var rr remoteResult
	err := ParseJSONBlock(`{"rootCauses": "not an array"}`, &rr)
	if !reasonerr.Is(err, reasonerr.CodeAPIParse) {
		t.Fatalf("expected API_PARSE_ERROR for type mismatch, got %v", err)
	}
}

/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package match_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/match"
	"github.com/Comcast/elementary/util/testutil"
)

type decodeCase struct {
	name    string
	pattern string
	data    string

	// want is the decoded result.  Empty means the data itself.
	want string

	// reason is the expected failure, if any.
	reason core.Reason
}

func runDecodeCases(t *testing.T, cases []decodeCase) {
	t.Helper()
	ev := match.NewEvaluator(nil)
	ctx := core.NewContext(map[string]interface{}{
		"model": map[string]interface{}{
			"sel": "x",
			"n":   1.0,
			"k":   "inc",
		},
	})
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pattern := testutil.Value(t, c.pattern)
			data := testutil.Value(t, c.data)
			got, err := ev.Decode(pattern, data, ctx)
			if c.reason != "" {
				if err == nil {
					t.Fatalf("expected %s but got %s", c.reason, testutil.JS(got))
				}
				if r := core.ReasonOf(err); r != c.reason {
					t.Fatalf("expected %s but got %s (%s)", c.reason, r, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			want := data
			if c.want != "" {
				want = testutil.Value(t, c.want)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeObjects(t *testing.T) {
	runDecodeCases(t, []decodeCase{
		{name: "subset", pattern: `{"type":"inc"}`, data: `{"type":"inc","by":2}`, want: `{"type":"inc"}`},
		{name: "nested", pattern: `{"n":{"any":"number"}}`, data: `{"n":3,"x":1}`, want: `{"n":3}`},
		{name: "missing property", pattern: `{"type":"inc"}`, data: `{"kind":"inc"}`, reason: core.NoMatch},
		{name: "wrong value", pattern: `{"type":"inc"}`, data: `{"type":"dec"}`, reason: core.NoMatch},
		{name: "not a map", pattern: `{"type":"inc"}`, data: `"inc"`, reason: core.NoMatch},
		{name: "explicit", pattern: `{"object":{"a":1}}`, data: `{"a":1,"b":2}`, want: `{"a":1}`},
		{name: "empty", pattern: `{}`, data: `{"a":1}`},
		{name: "empty not a map", pattern: `{}`, data: `[]`, reason: core.NoMatch},
		{name: "reference", pattern: `{"id":"@model.sel"}`, data: `{"id":"x","z":0}`, want: `{"id":"x"}`},
		{name: "reference differs", pattern: `{"id":"@model.sel"}`, data: `{"id":"y"}`, reason: core.NoMatch},
		{name: "reference missing", pattern: `{"id":"@model.gone"}`, data: `{"id":"y"}`, reason: core.MissingKey},
	})
}

func TestDecodeScalars(t *testing.T) {
	runDecodeCases(t, []decodeCase{
		{name: "number", pattern: `3`, data: `3.0`},
		{name: "boolean", pattern: `true`, data: `false`, reason: core.NoMatch},
		{name: "string", pattern: `"inc"`, data: `"inc"`},
		{name: "null", pattern: `null`, data: `null`},
		{name: "text", pattern: `{"text":"inc"}`, data: `"inc"`},
		{name: "key", pattern: `{"key":"@model.k"}`, data: `"inc"`},
		{name: "key differs", pattern: `{"key":"@model.k"}`, data: `"dec"`, reason: core.NoMatch},
	})
}

func TestDecodeLists(t *testing.T) {
	runDecodeCases(t, []decodeCase{
		{name: "positional", pattern: `[1,{"any":"text"}]`, data: `[1,"x",true]`, want: `[1,"x"]`},
		{name: "positional short", pattern: `[1,{"any":"text"}]`, data: `[1]`, reason: core.NoMatch},
		{name: "positional not a list", pattern: `[1]`, data: `{"0":1}`, reason: core.NoMatch},
		{name: "each", pattern: `{"list":{"any":"number"}}`, data: `[1,2]`},
		{name: "each fails", pattern: `{"list":{"any":"number"}}`, data: `[1,"x"]`, reason: core.NoMatch},
		{name: "each decodes", pattern: `{"list":{"id":{"any":"number"}}}`, data: `[{"id":1,"x":0}]`, want: `[{"id":1}]`},
		{name: "with element", pattern: `{"with":{"id":2}}`, data: `[{"id":1},{"id":2}]`},
		{name: "with no element", pattern: `{"with":{"id":3}}`, data: `[{"id":1},{"id":2}]`, reason: core.NoMatch},
		{name: "with map", pattern: `{"with":{"a":{"any":"number"}}}`, data: `{"a":1,"b":2}`, want: `{"a":1}`},
		{name: "all", pattern: `{"all":[1,2]}`, data: `[3,2,1]`},
		{name: "all missing", pattern: `{"all":[1,2]}`, data: `[1]`, reason: core.NoMatch},
		{name: "some", pattern: `{"some":[5,1]}`, data: `[1]`},
		{name: "some none", pattern: `{"some":[5]}`, data: `[1]`, reason: core.NoMatch},
		{name: "all not a list", pattern: `{"all":[1]}`, data: `1`, reason: core.NoMatch},
	})
}

func TestDecodeAny(t *testing.T) {
	runDecodeCases(t, []decodeCase{
		{name: "text", pattern: `{"any":"text"}`, data: `"x"`},
		{name: "number", pattern: `{"any":"number"}`, data: `0`},
		{name: "boolean", pattern: `{"any":"boolean"}`, data: `false`},
		{name: "list", pattern: `{"any":"list"}`, data: `[]`},
		{name: "object", pattern: `{"any":"object"}`, data: `{}`},
		{name: "null", pattern: `{"any":"object"}`, data: `null`, reason: core.NoMatch},
		{name: "wrong kind", pattern: `{"any":"text"}`, data: `1`, reason: core.NoMatch},
		{name: "unknown kind", pattern: `{"any":"weird"}`, data: `1`, reason: core.InvalidSpec},
		{
			name:    "file",
			pattern: `{"any":"file"}`,
			data:    `[{"name":"a.txt","size":3,"type":"text/plain"}]`,
			want:    `{"name":"a.txt","size":3,"type":"text/plain","file":{"name":"a.txt","size":3,"type":"text/plain"}}`,
		},
		{name: "file without size", pattern: `{"any":"file"}`, data: `{"name":"a.txt"}`, reason: core.NoMatch},
	})
}

func TestDecodeMembership(t *testing.T) {
	runDecodeCases(t, []decodeCase{
		{name: "entry in map", pattern: `{"entry_with":"b"}`, data: `{"x":"a","y":"b"}`},
		{name: "entry in list", pattern: `{"entry_with":"@model.sel"}`, data: `["a","x"]`},
		{name: "no entry", pattern: `{"entry_with":"c"}`, data: `["a","b"]`, reason: core.NoMatch},
		{name: "without", pattern: `{"without":["secret"]}`, data: `{"a":1}`},
		{name: "without present", pattern: `{"without":["secret"]}`, data: `{"secret":1}`, reason: core.NoMatch},
		{name: "without bad keys", pattern: `{"without":"secret"}`, data: `{"a":1}`, reason: core.TypeMismatch},
		{name: "empty string", pattern: `{"empty":true}`, data: `""`},
		{name: "empty list", pattern: `{"empty":true}`, data: `[]`},
		{name: "not empty", pattern: `{"empty":true}`, data: `"x"`, reason: core.NoMatch},
		{name: "non_empty", pattern: `{"non_empty":true}`, data: `{"a":1}`},
		{name: "non_empty empty", pattern: `{"non_empty":true}`, data: `{}`, reason: core.NoMatch},
		{name: "otherThan", pattern: `{"otherThan":"@model.n"}`, data: `2`},
		{name: "other_than same", pattern: `{"other_than":"@model.n"}`, data: `1`, reason: core.NoMatch},
		{name: "size text", pattern: `{"size":2}`, data: `"ab"`},
		{name: "size list", pattern: `{"size":2}`, data: `[1]`, reason: core.NoMatch},
		{name: "size zero", pattern: `{"size":0}`, data: `{}`},
		{name: "size of number", pattern: `{"size":0}`, data: `5`, reason: core.NoMatch},
	})
}

func TestDecodeAlternatives(t *testing.T) {
	runDecodeCases(t, []decodeCase{
		{
			name:    "oneOf second",
			pattern: `{"oneOf":[{"a":{"any":"number"}},{"a":{"any":"text"}}]}`,
			data:    `{"a":"x","b":1}`,
			want:    `{"a":"x"}`,
		},
		{
			name:    "oneOf first wins",
			pattern: `{"one_of":[{"any":"object"},{"a":{"any":"text"}}]}`,
			data:    `{"a":"x","b":1}`,
		},
		{name: "oneOf none", pattern: `{"oneOf":[1,2]}`, data: `3`, reason: core.NoMatch},
		{name: "oneOf error stops", pattern: `{"oneOf":[{"k":"@gone"},{"any":"object"}]}`, data: `{"k":1}`, reason: core.MissingKey},
		{name: "json", pattern: `{"json":"{\"a\":1}"}`, data: `{"a":1,"b":2}`, want: `{"a":1}`},
		{name: "bad json", pattern: `{"json":"{"}`, data: `{}`, reason: core.InvalidSpec},
		{name: "like", pattern: `{"like":"^hel+o"}`, data: `"HELLO world"`},
		{name: "like number", pattern: `{"like":"^4"}`, data: `42`, want: `"42"`},
		{name: "unlike", pattern: `{"like":"^hel+o"}`, data: `"bye"`, reason: core.NoMatch},
		{name: "bad regex", pattern: `{"like":"("}`, data: `"x"`, reason: core.InvalidSpec},
	})
}

func TestIsNoMatch(t *testing.T) {
	ev := match.NewEvaluator(nil)
	_, err := ev.Decode(map[string]interface{}{"a": 1.0}, map[string]interface{}{"a": 2.0}, core.NewContext())
	if !match.IsNoMatch(err) {
		t.Fatalf("expected a mismatch, got %v", err)
	}
	if match.IsNoMatch(nil) {
		t.Fatal("nil is not a mismatch")
	}
}

func TestClassify(t *testing.T) {
	for spec, want := range map[string]match.Form{
		`{}`:                      match.FormEmptyObject,
		`{"a":1}`:                 match.FormObject,
		`{"any":"text","list":1}`: match.FormAny,
		`{"text":"x","any":"x"}`:  match.FormText,
		`{"size":0}`:              match.FormSize,
		`{"empty":false,"b":1}`:   match.FormObject,
		`{"other_than":1}`:        match.FormOtherThan,
	} {
		if got := match.Classify(testutil.Map(t, spec)); got != want {
			t.Errorf("%s: expected %d, got %d", spec, want, got)
		}
	}
}

func TestDecodeEncoderForm(t *testing.T) {
	// Dynamic parts of patterns can use the full evaluator.
	ev := match.NewEvaluator(map[string]interface{}{"two": 2.0})
	pattern := map[string]interface{}{
		"n": map[string]interface{}{
			"key": map[string]interface{}{"sum": []interface{}{1.0, map[string]interface{}{"encoder": "two"}}},
		},
	}
	got, err := ev.Decode(pattern, map[string]interface{}{"n": 3.0}, core.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]interface{}{"n": 3.0}, got); diff != "" {
		t.Fatal(diff)
	}
}

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

// Package match implements the pattern matcher ("decoder").
//
// A pattern is a spec that checks and destructures data.  Patterns
// use their own set of forms (see Rules), and they call an Encoder to
// resolve any dynamic parts.  For example, the pattern
//
//   {"id": "@model.selected", "status": {"any": "text"}}
//
// matches a map whose "id" equals the current model's "selected"
// value and whose "status" is a string.
//
// Every structural mismatch is an error with reason core.NoMatch.
// Callers usually treat that reason as "try the next pattern".
package match

import (
	"encoding/json"

	"github.com/Comcast/elementary/core"
)

// Encoder evaluates the dynamic parts of patterns.
type Encoder interface {
	Encode(spec interface{}, ctx *core.Context) (interface{}, error)
}

// Form identifies a pattern variant.
type Form int

const (
	FormObject Form = iota
	FormEmptyObject
	FormText
	FormKey
	FormAny
	FormList
	FormEntryWith
	FormWith
	FormWithout
	FormAll
	FormSome
	FormEmpty
	FormNonEmpty
	FormOtherThan
	FormOneOf
	FormJSON
	FormSize
	FormLike
)

// Rule recognizes one pattern Form.
type Rule struct {
	Key  string
	Form Form
	By   core.Recognition
}

// Rules is the ordered list of recognition rules for map patterns.
var Rules = []Rule{
	{"text", FormText, core.ByPresence},
	{"key", FormKey, core.ByTruthiness},
	{"object", FormObject, core.ByTruthiness},
	{"any", FormAny, core.ByTruthiness},
	{"list", FormList, core.ByTruthiness},
	{"entry_with", FormEntryWith, core.ByTruthiness},
	{"with", FormWith, core.ByTruthiness},
	{"without", FormWithout, core.ByTruthiness},
	{"all", FormAll, core.ByTruthiness},
	{"some", FormSome, core.ByTruthiness},
	{"empty", FormEmpty, core.ByTruthiness},
	{"non_empty", FormNonEmpty, core.ByTruthiness},
	{"otherThan", FormOtherThan, core.ByTruthiness},
	{"other_than", FormOtherThan, core.ByTruthiness},
	{"oneOf", FormOneOf, core.ByTruthiness},
	{"one_of", FormOneOf, core.ByTruthiness},
	{"json", FormJSON, core.ByTruthiness},
	{"size", FormSize, core.ByPresence},
	{"like", FormLike, core.ByTruthiness},
}

// Classify returns the Form of a map pattern.
func Classify(spec map[string]interface{}) Form {
	if len(spec) == 0 {
		return FormEmptyObject
	}
	for _, r := range Rules {
		if (core.Rule{Key: r.Key, By: r.By}).Recognizes(spec) {
			return r.Form
		}
	}
	return FormObject
}

// Matcher decodes data using patterns.
type Matcher struct {
	Encoder Encoder
}

// New makes a Matcher that uses the given Encoder.
func New(enc Encoder) *Matcher {
	return &Matcher{
		Encoder: enc,
	}
}

// NewEvaluator makes a core.Evaluator and a Matcher that refer to
// each other.
func NewEvaluator(encoders map[string]interface{}) *core.Evaluator {
	e := core.NewEvaluator(encoders)
	e.Decoder = New(e)
	return e
}

// IsNoMatch reports whether err is a structural mismatch.
func IsNoMatch(err error) bool {
	return core.Is(err, core.NoMatch)
}

func noMatch(spec, data interface{}, ctx *core.Context) error {
	return &core.Error{
		Spec:   spec,
		Ctx:    ctx,
		Reason: core.NoMatch,
		Detail: core.TypeOf(data),
	}
}

// Decode matches data against the pattern.
//
// The result is the decoded data.  For most forms, that's just the
// data, but object patterns return only the properties they declare.
func (m *Matcher) Decode(spec, data interface{}, ctx *core.Context) (interface{}, error) {
	switch vv := spec.(type) {
	case []interface{}:
		return m.decodeList(vv, vv, data, ctx)
	case map[string]interface{}:
		return m.decodeMap(vv, data, ctx)
	case string:
		v, err := m.Encoder.Encode(vv, ctx)
		if err != nil {
			return nil, core.Wrap(spec, ctx, err)
		}
		if !core.Equal(v, data) {
			return nil, noMatch(spec, data, ctx)
		}
		return data, nil
	}
	if !core.Equal(spec, data) {
		return nil, noMatch(spec, data, ctx)
	}
	return data, nil
}

func (m *Matcher) decodeMap(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	switch Classify(spec) {
	case FormEmptyObject:
		if _, is := data.(map[string]interface{}); !is {
			return nil, noMatch(spec, data, ctx)
		}
		return data, nil
	case FormObject:
		props := spec
		if obj, is := spec["object"].(map[string]interface{}); is {
			props = obj
		}
		return m.decodeObject(spec, props, data, ctx)
	case FormText:
		return m.Decode(spec["text"], data, ctx)
	case FormKey:
		v, err := m.Encoder.Encode(spec["key"], ctx)
		if err != nil {
			return nil, core.Wrap(spec, ctx, err)
		}
		return m.Decode(v, data, ctx)
	case FormAny:
		return m.decodeAny(spec, data, ctx)
	case FormList:
		return m.decodeList(spec, spec["list"], data, ctx)
	case FormEntryWith:
		return m.decodeEntryWith(spec, data, ctx)
	case FormWith:
		return m.decodeWith(spec, data, ctx)
	case FormWithout:
		return m.decodeWithout(spec, data, ctx)
	case FormAll:
		return m.decodeIntersection(spec, "all", data, ctx)
	case FormSome:
		return m.decodeIntersection(spec, "some", data, ctx)
	case FormEmpty:
		if !core.IsEmpty(data) {
			return nil, noMatch(spec, data, ctx)
		}
		return data, nil
	case FormNonEmpty:
		if core.IsEmpty(data) {
			return nil, noMatch(spec, data, ctx)
		}
		return data, nil
	case FormOtherThan:
		key := "otherThan"
		if _, have := spec[key]; !have {
			key = "other_than"
		}
		v, err := m.Encoder.Encode(spec[key], ctx)
		if err != nil {
			return nil, core.Wrap(spec, ctx, err)
		}
		if core.Equal(v, data) {
			return nil, noMatch(spec, data, ctx)
		}
		return data, nil
	case FormOneOf:
		return m.decodeOneOf(spec, data, ctx)
	case FormJSON:
		return m.decodeJSON(spec, data, ctx)
	case FormSize:
		return m.decodeSize(spec, data, ctx)
	case FormLike:
		return m.decodeLike(spec, data, ctx)
	}
	return nil, core.NewError(spec, ctx, core.InvalidSpec, "unhandled pattern")
}

func (m *Matcher) decodeObject(spec, props map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	d, is := data.(map[string]interface{})
	if !is {
		return nil, noMatch(spec, data, ctx)
	}
	acc := make(map[string]interface{}, len(props))
	for k, p := range props {
		x, have := d[k]
		if !have {
			return nil, noMatch(spec, data, ctx)
		}
		v, err := m.Decode(p, x, ctx)
		if err != nil {
			return nil, core.Wrap(spec, ctx, err)
		}
		acc[k] = v
	}
	return acc, nil
}

// decodeList handles both a positional list of patterns and a single
// pattern for every element.
func (m *Matcher) decodeList(spec, items interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	d, is := data.([]interface{})
	if !is {
		return nil, noMatch(spec, data, ctx)
	}
	if ps, is := items.([]interface{}); is {
		if len(d) < len(ps) {
			return nil, noMatch(spec, data, ctx)
		}
		acc := make([]interface{}, len(ps))
		for i, p := range ps {
			v, err := m.Decode(p, d[i], ctx)
			if err != nil {
				return nil, core.Wrap(spec, ctx, err)
			}
			acc[i] = v
		}
		return acc, nil
	}
	acc := make([]interface{}, len(d))
	for i, x := range d {
		v, err := m.Decode(items, x, ctx)
		if err != nil {
			return nil, core.Wrap(spec, ctx, err)
		}
		acc[i] = v
	}
	return acc, nil
}

func (m *Matcher) decodeAny(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	if data == nil {
		return nil, noMatch(spec, data, ctx)
	}
	kind, _ := spec["any"].(string)
	switch kind {
	case "text", "number", "boolean", "list", "object":
		if core.TypeOf(data) != kind {
			return nil, noMatch(spec, data, ctx)
		}
		return data, nil
	case "file":
		// A file is described by a map with at least a name and a
		// size, possibly inside a list of files.
		f := data
		if fs, is := data.([]interface{}); is && 0 < len(fs) {
			f = fs[0]
		}
		d, is := f.(map[string]interface{})
		if !is {
			return nil, noMatch(spec, data, ctx)
		}
		if _, have := d["name"]; !have {
			return nil, noMatch(spec, data, ctx)
		}
		if _, have := d["size"]; !have {
			return nil, noMatch(spec, data, ctx)
		}
		return map[string]interface{}{
			"name": d["name"],
			"type": d["type"],
			"size": d["size"],
			"file": d,
		}, nil
	}
	return nil, core.NewError(spec, ctx, core.InvalidSpec, "unknown any condition")
}

// decodeEntryWith matches a map that has a value (or a list that
// has an element) equal to the evaluated spec.
func (m *Matcher) decodeEntryWith(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	v, err := m.Encoder.Encode(spec["entry_with"], ctx)
	if err != nil {
		return nil, core.Wrap(spec, ctx, err)
	}
	var xs []interface{}
	switch d := data.(type) {
	case map[string]interface{}:
		xs = core.Values(d)
	case []interface{}:
		xs = d
	}
	for _, x := range xs {
		if core.Equal(x, v) {
			return data, nil
		}
	}
	return nil, noMatch(spec, data, ctx)
}

func (m *Matcher) decodeWith(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	switch d := data.(type) {
	case []interface{}:
		for _, x := range d {
			_, err := m.Decode(spec["with"], x, ctx)
			if err == nil {
				return data, nil
			}
			if !IsNoMatch(err) {
				return nil, core.Wrap(spec, ctx, err)
			}
		}
	case map[string]interface{}:
		props, is := spec["with"].(map[string]interface{})
		if !is {
			return nil, core.Mismatch(spec, ctx, "object", spec["with"])
		}
		return m.decodeObject(spec, props, data, ctx)
	}
	return nil, noMatch(spec, data, ctx)
}

func (m *Matcher) decodeWithout(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	d, is := data.(map[string]interface{})
	if !is {
		return nil, noMatch(spec, data, ctx)
	}
	v, err := m.Encoder.Encode(spec["without"], ctx)
	if err != nil {
		return nil, core.Wrap(spec, ctx, err)
	}
	keys, is := v.([]interface{})
	if !is {
		return nil, core.Mismatch(spec, ctx, "list", v)
	}
	for _, k := range keys {
		if _, have := d[core.Text(k)]; have {
			return nil, noMatch(spec, data, ctx)
		}
	}
	return data, nil
}

// decodeIntersection is "all" (every evaluated item must be in the
// data) and "some" (at least one must be).
func (m *Matcher) decodeIntersection(spec map[string]interface{}, key string, data interface{}, ctx *core.Context) (interface{}, error) {
	d, is := data.([]interface{})
	if !is {
		return nil, noMatch(spec, data, ctx)
	}
	v, err := m.Encoder.Encode(spec[key], ctx)
	if err != nil {
		return nil, core.Wrap(spec, ctx, err)
	}
	items, is := v.([]interface{})
	if !is {
		return nil, core.Mismatch(spec, ctx, "list", v)
	}
	n := 0
	for _, item := range items {
		for _, x := range d {
			if core.Equal(item, x) {
				n++
				break
			}
		}
	}
	if (key == "all" && n == len(items)) || (key == "some" && 0 < n) {
		return data, nil
	}
	return nil, noMatch(spec, data, ctx)
}

// decodeOneOf returns the result of the first alternative that
// matches.  Errors other than NoMatch stop the search.
func (m *Matcher) decodeOneOf(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	key := "oneOf"
	if _, have := spec[key]; !have {
		key = "one_of"
	}
	alts, is := spec[key].([]interface{})
	if !is {
		return nil, core.Mismatch(spec, ctx, "list", spec[key])
	}
	for _, p := range alts {
		v, err := m.Decode(p, data, ctx)
		if err == nil {
			return v, nil
		}
		if !IsNoMatch(err) {
			return nil, core.Wrap(spec, ctx, err)
		}
	}
	return nil, noMatch(spec, data, ctx)
}

// decodeJSON parses its string as a pattern and uses that.
func (m *Matcher) decodeJSON(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	src, is := spec["json"].(string)
	if !is {
		return nil, core.Mismatch(spec, ctx, "text", spec["json"])
	}
	var pattern interface{}
	if err := json.Unmarshal([]byte(src), &pattern); err != nil {
		return nil, &core.Error{Spec: spec, Ctx: ctx, Reason: core.InvalidSpec, Cause: err}
	}
	return m.Decode(pattern, data, ctx)
}

func (m *Matcher) decodeSize(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	v, err := m.Encoder.Encode(spec["size"], ctx)
	if err != nil {
		return nil, core.Wrap(spec, ctx, err)
	}
	want, is := core.Number(v)
	if !is {
		return nil, core.Mismatch(spec, ctx, "number", v)
	}
	n := -1
	switch d := data.(type) {
	case map[string]interface{}:
		n = len(d)
	case []interface{}:
		n = len(d)
	case string:
		n = len([]rune(d))
	}
	if float64(n) != want {
		return nil, noMatch(spec, data, ctx)
	}
	return data, nil
}

func (m *Matcher) decodeLike(spec map[string]interface{}, data interface{}, ctx *core.Context) (interface{}, error) {
	v, err := m.Encoder.Encode(spec["like"], ctx)
	if err != nil {
		return nil, core.Wrap(spec, ctx, err)
	}
	re, err := core.Regexp(core.Text(v), true)
	if err != nil {
		return nil, &core.Error{Spec: spec, Ctx: ctx, Reason: core.InvalidSpec, Cause: err}
	}
	s := core.Text(data)
	matched, err := re.MatchString(s)
	if err != nil {
		return nil, &core.Error{Spec: spec, Ctx: ctx, Reason: core.InvalidSpec, Cause: err}
	}
	if !matched {
		return nil, noMatch(spec, data, ctx)
	}
	return s, nil
}

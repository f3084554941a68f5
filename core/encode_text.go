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

package core

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cbroglie/mustache"
	"github.com/dlclark/regexp2"
	"github.com/dustin/go-humanize"
)

func (e *Evaluator) encodeText(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "text", ctx)
	if err != nil {
		return nil, err
	}
	return Text(v), nil
}

func (e *Evaluator) encodeChar(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "char", ctx)
	if err != nil {
		return nil, err
	}
	i, is := Number(v)
	if !is {
		return nil, Mismatch(spec, ctx, "number", v)
	}
	if v, err = e.sub(spec, "in", ctx); err != nil {
		return nil, err
	}
	s, is := v.(string)
	if !is {
		return nil, Mismatch(spec, ctx, "text", v)
	}
	rs := []rune(s)
	if i < 0 || int(i) >= len(rs) {
		return "", nil
	}
	return string(rs[int(i)]), nil
}

// encodeString applies f to the string at spec[key].
func (e *Evaluator) encodeString(spec map[string]interface{}, key string, ctx *Context, f func(string) string) (interface{}, error) {
	v, err := e.sub(spec, key, ctx)
	if err != nil {
		return nil, err
	}
	s, is := v.(string)
	if !is {
		return nil, Mismatch(spec, ctx, "text", v)
	}
	return f(s), nil
}

func capitalize(s string) string {
	rs := []rune(s)
	if len(rs) == 0 {
		return s
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

// camel lowercases s and then removes each run of non-alphanumeric
// characters, uppercasing the character after the run.
func camel(s string) string {
	var (
		b    strings.Builder
		skip bool
	)
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z')
		switch {
		case !alnum:
			skip = true
		case skip:
			b.WriteRune(unicode.ToUpper(r))
			skip = false
		default:
			b.WriteRune(r)
			skip = false
		}
	}
	return b.String()
}

func (e *Evaluator) encodeFormat(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	pattern, is := spec["format"].(string)
	if !is {
		v, err := e.sub(spec, "format", ctx)
		if err != nil {
			return nil, err
		}
		if pattern, is = v.(string); !is {
			return nil, Mismatch(spec, ctx, "text", v)
		}
	}
	params := spec["params"]
	if params == nil {
		params = "@"
	}
	v, err := e.Encode(params, ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	s, err := mustache.Render(pattern, v)
	if err != nil {
		return nil, &Error{Spec: spec, Ctx: ctx, Reason: InvalidSpec, Cause: err}
	}
	return s, nil
}

func (e *Evaluator) encodeFormatDate(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	key := "formatDate"
	if _, have := spec[key]; !have {
		key = "format_date"
	}
	opts, is := spec[key].(map[string]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "object", spec[key])
	}
	return e.formatDate(spec, opts["pattern"], opts["date"], ctx)
}

func (e *Evaluator) encodeTimestamp(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	opts, _ := spec["timestamp"].(map[string]interface{})
	return e.formatDate(spec, opts["format"], opts["value"], ctx)
}

// formatDate evaluates the optional pattern and date specs and
// formats the date.  No date means now; no pattern means ISO 8601.
func (e *Evaluator) formatDate(spec map[string]interface{}, patternSpec, dateSpec interface{}, ctx *Context) (interface{}, error) {
	pattern := ""
	if patternSpec != nil {
		v, err := e.Encode(patternSpec, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		s, is := v.(string)
		if !is {
			return nil, Mismatch(spec, ctx, "text", v)
		}
		pattern = s
	}

	now := e.Now()
	t := now
	if dateSpec != nil {
		v, err := e.Encode(dateSpec, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		if t, err = ParseTime(v); err != nil {
			return nil, &Error{Spec: spec, Ctx: ctx, Reason: TypeMismatch, Detail: "expected a date", Cause: err}
		}
	}

	switch pattern {
	case "":
		return t.Format(time.RFC3339), nil
	case "relative":
		return humanize.RelTime(t, now, "ago", "from now"), nil
	}
	return FormatMoment(t, pattern), nil
}

func (e *Evaluator) encodeSplit(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	sep, err := e.sub(spec, "using", ctx)
	if err != nil {
		return nil, err
	}
	v, err := e.sub(spec, "split", ctx)
	if err != nil {
		return nil, err
	}
	s, is := v.(string)
	if !is {
		return nil, Mismatch(spec, ctx, "text", v)
	}
	parts := strings.Split(s, Text(sep))
	acc := make([]interface{}, len(parts))
	for i, p := range parts {
		acc[i] = p
	}
	return acc, nil
}

func (e *Evaluator) encodeJoin(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	sep, err := e.sub(spec, "using", ctx)
	if err != nil {
		return nil, err
	}
	xs, err := e.subList(spec, "join", ctx)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		if x != nil {
			parts[i] = Text(x)
		}
	}
	return strings.Join(parts, Text(sep)), nil
}

func (e *Evaluator) encodePrettify(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "prettify", ctx)
	if err != nil {
		return nil, err
	}
	js, err := json.MarshalIndent(&v, "", "  ")
	if err != nil {
		return nil, &Error{Spec: spec, Ctx: ctx, Reason: TypeMismatch, Cause: err}
	}
	return string(js), nil
}

// encodeCompare is "greaterThan" (sign 1) and "lower_than" (sign -1).
func (e *Evaluator) encodeCompare(spec map[string]interface{}, ctx *Context, sign int) (interface{}, error) {
	key := "lower_than"
	if sign > 0 {
		if key = "greaterThan"; spec[key] == nil {
			key = "greater_than"
		}
	}
	xs, err := specs(spec, key, ctx)
	if err != nil {
		return nil, err
	}
	if len(xs) < 2 {
		return nil, NewError(spec, ctx, TypeMismatch, "expected two operands")
	}
	vs, err := e.encodeList(xs[0:2], ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	a, b := vs.([]interface{})[0], vs.([]interface{})[1]

	cmp := 0
	if x, is := Number(a); is {
		y, is := Number(b)
		if !is {
			return nil, Mismatch(spec, ctx, "number", b)
		}
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	} else if x, is := a.(string); is {
		y, is := b.(string)
		if !is {
			return nil, Mismatch(spec, ctx, "text", b)
		}
		cmp = strings.Compare(x, y)
	} else {
		return nil, Mismatch(spec, ctx, "number or text", a)
	}
	return cmp == sign, nil
}

func (e *Evaluator) encodeRegex(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	pattern, is := spec["regex"].(string)
	if !is {
		return nil, Mismatch(spec, ctx, "text", spec["regex"])
	}
	re, err := Regexp(pattern, false)
	if err != nil {
		return nil, &Error{Spec: spec, Ctx: ctx, Reason: InvalidSpec, Cause: err}
	}
	v, err := e.sub(spec, "in", ctx)
	if err != nil {
		return nil, err
	}
	matched, err := re.MatchString(Text(v))
	if err != nil {
		return nil, &Error{Spec: spec, Ctx: ctx, Reason: InvalidSpec, Cause: err}
	}
	return matched, nil
}

var regexps sync.Map

// Regexp compiles (and caches) an ECMAScript-flavored regular
// expression.
func Regexp(pattern string, ignoreCase bool) (*regexp2.Regexp, error) {
	type key struct {
		pattern    string
		ignoreCase bool
	}
	k := key{pattern, ignoreCase}
	if re, have := regexps.Load(k); have {
		return re.(*regexp2.Regexp), nil
	}
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = time.Second
	regexps.Store(k, re)
	return re, nil
}

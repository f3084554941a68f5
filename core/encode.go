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
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decoder is a pattern matcher.  See package match.
type Decoder interface {
	Decode(spec, data interface{}, ctx *Context) (interface{}, error)
}

// Evaluator evaluates ("encodes") specs.
//
// The forms "filter", "reject", "first" and "match" need a Decoder.
type Evaluator struct {
	// Encoders is the registry used by the "encoder" form.
	Encoders map[string]interface{}

	// Decoder is the pattern matcher.
	Decoder Decoder

	// Now is the clock for "timestamp" and relative dates.
	Now func() time.Time

	// NewUUID generates values for the "uuid" form.
	NewUUID func() string
}

// NewEvaluator makes an Evaluator with the given encoders registry.
func NewEvaluator(encoders map[string]interface{}) *Evaluator {
	if encoders == nil {
		encoders = make(map[string]interface{})
	}
	return &Evaluator{
		Encoders: encoders,
		Now:      time.Now,
		NewUUID:  uuid.NewString,
	}
}

// Decode calls the Evaluator's Decoder.
func (e *Evaluator) Decode(spec, data interface{}, ctx *Context) (interface{}, error) {
	if e.Decoder == nil {
		return nil, NewError(spec, ctx, InvalidSpec, "no decoder")
	}
	return e.Decoder.Decode(spec, data, ctx)
}

// Encode evaluates the spec against the Context.
func (e *Evaluator) Encode(spec interface{}, ctx *Context) (interface{}, error) {
	switch vv := spec.(type) {
	case nil:
		return nil, NewError(spec, ctx, MissingEncodingSpec, "")
	case string:
		if strings.HasPrefix(vv, "@") {
			return ctx.Lookup(vv)
		}
		return vv, nil
	case bool:
		return vv, nil
	case []interface{}:
		return e.encodeList(vv, ctx)
	case map[string]interface{}:
		return e.encodeMap(vv, ctx)
	}
	if f, is := Number(spec); is {
		return f, nil
	}
	return nil, NewError(spec, ctx, InvalidSpec, "unsupported "+TypeOf(spec))
}

func (e *Evaluator) encodeMap(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	switch Classify(spec) {
	case FormEmpty:
		return map[string]interface{}{}, nil
	case FormImplicit:
		return e.encodeObject(spec, spec, ctx)
	case FormObject:
		m, is := spec["object"].(map[string]interface{})
		if !is {
			return nil, Mismatch(spec, ctx, "object", spec["object"])
		}
		return e.encodeObject(spec, m, ctx)
	case FormText:
		return e.encodeText(spec, ctx)
	case FormChar:
		return e.encodeChar(spec, ctx)
	case FormKey:
		return ctx.Lookup(spec["key"].(string))
	case FormSwitch:
		return e.encodeSwitch(spec, ctx)
	case FormChoose:
		return e.encodeChoose(spec, ctx)
	case FormFormat:
		return e.encodeFormat(spec, ctx)
	case FormFormatDate:
		return e.encodeFormatDate(spec, ctx)
	case FormTimestamp:
		return e.encodeTimestamp(spec, ctx)
	case FormMaybe:
		return e.encodeMaybe(spec, ctx)
	case FormMaybeWith:
		return e.encodeMaybeWith(spec, ctx)
	case FormEqual:
		return e.encodeEqual(spec, ctx)
	case FormEither:
		return e.encodeEither(spec, ctx)
	case FormOneOf:
		return e.encodeOneOf(spec, ctx)
	case FormEffect:
		return e.encodeEffect(spec, ctx)
	case FormEncoder:
		return e.encodeUsingEncoder(spec, ctx)
	case FormIsSet:
		return e.encodeIsSet(spec, ctx)
	case FormNot:
		return e.encodeNot(spec, ctx)
	case FormAnd:
		return e.encodeAndOr(spec, "and", ctx)
	case FormOr:
		return e.encodeAndOr(spec, "or", ctx)
	case FormFirst:
		return e.encodeFirst(spec, ctx)
	case FormHead:
		return e.encodeHead(spec, ctx)
	case FormTail:
		return e.encodeTail(spec, ctx)
	case FormLast:
		return e.encodeLast(spec, ctx)
	case FormSplit:
		return e.encodeSplit(spec, ctx)
	case FormJoin:
		return e.encodeJoin(spec, ctx)
	case FormConcat:
		return e.encodeConcat(spec, ctx)
	case FormMerge:
		return e.encodeMerge(spec, ctx)
	case FormPrettify:
		return e.encodePrettify(spec, ctx)
	case FormPercent:
		return e.encodePercent(spec, ctx)
	case FormDivide:
		return e.encodeDivide(spec, ctx)
	case FormSum:
		return e.encodeSum(spec, ctx)
	case FormSizeOf:
		return e.encodeSizeOf(spec, ctx)
	case FormLowercase:
		return e.encodeString(spec, "lowercase", ctx, strings.ToLower)
	case FormUppercase:
		return e.encodeString(spec, "uppercase", ctx, strings.ToUpper)
	case FormCapitalize:
		return e.encodeString(spec, "capitalize", ctx, capitalize)
	case FormCamel:
		return e.encodeString(spec, "camel", ctx, camel)
	case FormGreaterThan:
		return e.encodeCompare(spec, ctx, 1)
	case FormLowerThan:
		return e.encodeCompare(spec, ctx, -1)
	case FormRegex:
		return e.encodeRegex(spec, ctx)
	case FormPipeline:
		return e.encodePipeline(spec, ctx)
	case FormMap:
		return e.encodeMapping(spec, spec["map"], ctx, spec["flatten"] == true)
	case FormFlatMap:
		return e.encodeMapping(spec, spec["flat_map"], ctx, true)
	case FormFilter:
		return e.encodeFilter(spec, spec["filter"], ctx, true)
	case FormReject:
		return e.encodeFilter(spec, spec["reject"], ctx, false)
	case FormUnique:
		return e.encodeUnique(spec, ctx)
	case FormData:
		return spec["data"], nil
	case FormHas:
		return e.encodeHas(spec, ctx)
	case FormMember:
		return e.encodeMember(spec, ctx)
	case FormEmptyTest:
		v, err := e.sub(spec, "empty", ctx)
		if err != nil {
			return nil, err
		}
		return IsEmpty(v), nil
	case FormAdd:
		return e.encodeAdd(spec, ctx)
	case FormRemove:
		return e.encodeRemove(spec, ctx)
	case FormMatch:
		return e.encodeMatch(spec, ctx)
	case FormCombine:
		return e.encodeCombine(spec, ctx)
	case FormIndex:
		return e.encodeIndex(spec, ctx, false)
	case FormGroup:
		return e.encodeIndex(spec, ctx, true)
	case FormResolve:
		return e.encodeResolve(spec, ctx)
	case FormLet:
		return e.encodeLet(spec, ctx)
	case FormTake:
		return e.encodeTake(spec, ctx)
	case FormUUID:
		return e.NewUUID(), nil
	}
	return nil, NewError(spec, ctx, InvalidSpec, "unhandled form")
}

// sub evaluates spec[key], wrapping any error.
func (e *Evaluator) sub(spec map[string]interface{}, key string, ctx *Context) (interface{}, error) {
	v, err := e.Encode(spec[key], ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	return v, nil
}

// subList evaluates spec[key], which should give a list.
func (e *Evaluator) subList(spec map[string]interface{}, key string, ctx *Context) ([]interface{}, error) {
	v, err := e.sub(spec, key, ctx)
	if err != nil {
		return nil, err
	}
	xs, is := v.([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list", v)
	}
	return xs, nil
}

// specs returns spec[key] as a list of specs without evaluating it.
func specs(spec map[string]interface{}, key string, ctx *Context) ([]interface{}, error) {
	xs, is := spec[key].([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list of specs", spec[key])
	}
	return xs, nil
}

// alias returns spec["as"] or the given default.
func alias(spec map[string]interface{}, def string) string {
	if s, is := spec["as"].(string); is && s != "" {
		return s
	}
	return def
}

// source returns spec[key], or "@items" if that's empty.
func source(spec map[string]interface{}, key string) interface{} {
	if IsEmpty(spec[key]) {
		return "@items"
	}
	return spec[key]
}

func (e *Evaluator) encodeList(specs []interface{}, ctx *Context) (interface{}, error) {
	acc := make([]interface{}, len(specs))
	for i, s := range specs {
		v, err := e.Encode(s, ctx)
		if err != nil {
			return nil, Wrap(s, ctx, err)
		}
		acc[i] = v
	}
	return acc, nil
}

func (e *Evaluator) encodeObject(spec, m map[string]interface{}, ctx *Context) (interface{}, error) {
	acc := make(map[string]interface{}, len(m))
	for k, s := range m {
		v, err := e.Encode(s, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		acc[k] = v
	}
	return acc, nil
}

func (e *Evaluator) encodeSwitch(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "switch", ctx)
	if err != nil {
		return nil, err
	}
	cases, _ := spec["case"].(map[string]interface{})
	clause, have := cases[Text(v)]
	if !have || clause == nil {
		if clause, have = spec["default"]; !have {
			return nil, NewError(spec, ctx, NoMatch, "no clause for "+Text(v))
		}
	}
	x, err := e.Encode(clause, ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	return x, nil
}

func (e *Evaluator) encodeChoose(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "choose", ctx)
	if err != nil {
		return nil, err
	}
	when, err := e.sub(spec, "when", ctx)
	if err != nil {
		return nil, err
	}
	if Equal(v, when) {
		return e.sub(spec, "then", ctx)
	}
	return e.sub(spec, "otherwise", ctx)
}

func (e *Evaluator) encodeMaybe(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.Encode(spec["maybe"], ctx)
	if err == nil {
		return v, nil
	}
	if _, have := spec["otherwise"]; !have {
		return nil, nil
	}
	return e.sub(spec, "otherwise", ctx)
}

func (e *Evaluator) encodeMaybeWith(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	props, err := specs(spec, "maybe_with", ctx)
	if err != nil {
		return nil, err
	}
	acc := make(map[string]interface{}, len(props))
	for _, p := range props {
		name, is := p.(string)
		if !is {
			return nil, Mismatch(spec, ctx, "text", p)
		}
		v, err := ctx.Lookup("@" + name)
		if err != nil {
			continue
		}
		switch vv := v.(type) {
		case string:
			if vv == "" {
				continue
			}
		case []interface{}:
			if len(vv) == 0 {
				continue
			}
		default:
			continue
		}
		acc[name] = v
	}
	return acc, nil
}

func (e *Evaluator) encodeEqual(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	xs, err := specs(spec, "equal", ctx)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return false, nil
	}
	expected, err := e.Encode(xs[0], ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	for _, s := range xs[1:] {
		v, err := e.Encode(s, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		if !Equal(v, expected) {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) encodeEither(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	clauses, err := specs(spec, "either", ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range clauses {
		clause, is := c.(map[string]interface{})
		if !is {
			return e.Encode(c, ctx)
		}
		if when, have := clause["when"]; have {
			v, err := e.Encode(when, ctx)
			if err != nil {
				return nil, Wrap(spec, ctx, err)
			}
			if !Truthy(v) {
				continue
			}
		}
		body := interface{}(clause)
		if then, have := clause["then"]; have {
			body = then
		}
		v, err := e.Encode(body, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		return v, nil
	}
	return nil, NewError(spec, ctx, AllConditionsFailed, "no clause matched")
}

func (e *Evaluator) encodeOneOf(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	key := "oneOf"
	if _, have := spec[key]; !have {
		key = "one_of"
	}
	alts, err := specs(spec, key, ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range alts {
		if v, err := e.Encode(s, ctx); err == nil && Truthy(v) {
			return v, nil
		}
	}
	return nil, NewError(spec, ctx, NoMatch, "no alternative produced a value")
}

func (e *Evaluator) encodeEffect(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	name, err := e.sub(spec, "effect", ctx)
	if err != nil {
		return nil, err
	}
	cmd := map[string]interface{}{
		"effect": name,
	}
	if Truthy(spec["encoder"]) {
		enc, err := e.sub(spec, "encoder", ctx)
		if err != nil {
			return nil, err
		}
		cmd["encoder"] = enc
	}
	return cmd, nil
}

func (e *Evaluator) encodeUsingEncoder(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "encoder", ctx)
	if err != nil {
		return nil, err
	}
	name, is := v.(string)
	if !is {
		return nil, Mismatch(spec, ctx, "text", v)
	}
	enc, have := e.Encoders[name]
	if !have {
		return nil, NewError(spec, ctx, NoSuchEncoder, name)
	}
	encCtx := ctx
	if Truthy(spec["params"]) {
		x, err := e.sub(spec, "params", ctx)
		if err != nil {
			return nil, err
		}
		params, is := x.(map[string]interface{})
		if !is {
			return nil, Mismatch(spec, ctx, "object", x)
		}
		encCtx = ctx.Extend(params)
	}
	x, err := e.Encode(enc, encCtx)
	if err != nil {
		return nil, Wrap(spec, encCtx, err)
	}
	return x, nil
}

func (e *Evaluator) encodeIsSet(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	if ctx == nil {
		return nil, NewError(spec, ctx, MissingContext, "")
	}
	v, err := e.sub(spec, "is_set", ctx)
	if err != nil {
		return nil, err
	}
	return Truthy(v) && !IsEmpty(v), nil
}

func (e *Evaluator) encodeNot(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "not", ctx)
	if err != nil {
		return nil, err
	}
	b, is := v.(bool)
	if !is {
		return nil, Mismatch(spec, ctx, "boolean", v)
	}
	return !b, nil
}

// encodeAndOr short-circuits over the list at spec[op].
func (e *Evaluator) encodeAndOr(spec map[string]interface{}, op string, ctx *Context) (interface{}, error) {
	xs, err := specs(spec, op, ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range xs {
		v, err := e.Encode(s, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		if op == "and" && !Truthy(v) {
			return false, nil
		}
		if op == "or" && Truthy(v) {
			return true, nil
		}
	}
	return op == "and", nil
}

func (e *Evaluator) encodeHas(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "has", ctx)
	if err != nil {
		return nil, err
	}
	name, is := v.(string)
	if !is {
		return nil, Mismatch(spec, ctx, "text", v)
	}
	_, have := ctx.Get(name)
	return have, nil
}

func (e *Evaluator) encodeMember(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	xs, err := e.subList(spec, "member", ctx)
	if err != nil {
		return nil, err
	}
	if len(xs) != 2 {
		return nil, NewError(spec, ctx, TypeMismatch, "expected [list, item]")
	}
	col, is := xs[0].([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list", xs[0])
	}
	return indexOf(col, xs[1]) != -1, nil
}

func (e *Evaluator) encodeMatch(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	pattern, err := e.sub(spec, "match", ctx)
	if err != nil {
		return nil, err
	}
	if _, err = e.Decode(pattern, ctx.Map(), ctx); err != nil {
		if Is(err, NoMatch) {
			return false, nil
		}
		return nil, Wrap(spec, ctx, err)
	}
	return true, nil
}

func (e *Evaluator) encodeResolve(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "resolve", ctx)
	if err != nil {
		return nil, err
	}
	var (
		x     interface{}
		found error
	)
	switch vv := v.(type) {
	case []interface{}:
		segs := make([]string, len(vv))
		for i, seg := range vv {
			segs[i] = Text(seg)
		}
		x, found = ctx.Lookup("@" + strings.Join(segs, "."))
	case string:
		var have bool
		if x, have = ctx.Get(vv); !have {
			found = NewError(spec, ctx, MissingKey, vv)
		}
	default:
		return nil, Mismatch(spec, ctx, "list or text", v)
	}
	if found == nil {
		return x, nil
	}
	if _, have := spec["otherwise"]; !have {
		return nil, Wrap(spec, ctx, found)
	}
	return e.sub(spec, "otherwise", ctx)
}

func (e *Evaluator) encodeLet(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "let", ctx)
	if err != nil {
		return nil, err
	}
	m, is := v.(map[string]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "object", v)
	}
	return e.sub(spec, "in", ctx.Extend(m))
}

func (e *Evaluator) encodeTake(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	keys, err := e.subList(spec, "take", ctx)
	if err != nil {
		return nil, err
	}
	v, err := e.sub(spec, "from", ctx)
	if err != nil {
		return nil, err
	}
	from, is := v.(map[string]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "object", v)
	}
	acc := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		name := Text(k)
		if x, have := from[name]; have {
			acc[name] = x
		}
	}
	return acc, nil
}

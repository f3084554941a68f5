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
	"math"
	"strconv"
)

func indexOf(xs []interface{}, x interface{}) int {
	for i, y := range xs {
		if Equal(x, y) {
			return i
		}
	}
	return -1
}

func (e *Evaluator) encodeFirst(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	pattern, err := e.sub(spec, "first", ctx)
	if err != nil {
		return nil, err
	}
	items, err := e.subList(spec, "in", ctx)
	if err != nil {
		return nil, err
	}
	as := alias(spec, "item")
	for _, item := range items {
		_, err := e.Decode(pattern, item, ctx.With(as, item))
		if err == nil {
			return item, nil
		}
		if !Is(err, NoMatch) {
			return nil, Wrap(spec, ctx, err)
		}
	}
	return nil, NewError(spec, ctx, NoMatch, "no item matched")
}

func (e *Evaluator) encodeHead(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	xs, err := e.subList(spec, "head", ctx)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, NewError(spec, ctx, TypeMismatch, "empty_list")
	}
	return xs[0], nil
}

func (e *Evaluator) encodeTail(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	xs, err := e.subList(spec, "tail", ctx)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return []interface{}{}, nil
	}
	return append([]interface{}{}, xs[1:]...), nil
}

func (e *Evaluator) encodeLast(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	xs, err := e.subList(spec, "last", ctx)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, NewError(spec, ctx, TypeMismatch, "empty_list")
	}
	return xs[len(xs)-1], nil
}

// flatten spreads any lists in xs one level.
func flatten(xs []interface{}) []interface{} {
	acc := make([]interface{}, 0, len(xs))
	for _, x := range xs {
		if ys, is := x.([]interface{}); is {
			acc = append(acc, ys...)
		} else {
			acc = append(acc, x)
		}
	}
	return acc
}

func (e *Evaluator) encodeConcat(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	key := "concat"
	if _, have := spec[key]; !have {
		key = "merged_list"
	}
	xs, err := specs(spec, key, ctx)
	if err != nil {
		return nil, err
	}
	vs, err := e.encodeList(xs, ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	return flatten(vs.([]interface{})), nil
}

func (e *Evaluator) encodeMerge(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	xs, err := specs(spec, "merge", ctx)
	if err != nil {
		return nil, err
	}
	acc := make(map[string]interface{}, 8)
	for _, s := range xs {
		v, err := e.Encode(s, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		if v == nil {
			continue
		}
		m, is := v.(map[string]interface{})
		if !is {
			return nil, Mismatch(spec, ctx, "object", v)
		}
		for k, x := range m {
			acc[k] = x
		}
	}
	return acc, nil
}

// numbers evaluates a list of specs that should all give numbers.
func (e *Evaluator) numbers(spec map[string]interface{}, key string, ctx *Context) ([]float64, error) {
	xs, err := specs(spec, key, ctx)
	if err != nil {
		return nil, err
	}
	acc := make([]float64, len(xs))
	for i, s := range xs {
		v, err := e.Encode(s, ctx)
		if err != nil {
			return nil, Wrap(spec, ctx, err)
		}
		f, is := Number(v)
		if !is {
			return nil, Mismatch(spec, ctx, "number", v)
		}
		acc[i] = f
	}
	return acc, nil
}

func (e *Evaluator) encodeSum(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	fs, err := e.numbers(spec, "sum", ctx)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, f := range fs {
		sum += f
	}
	return sum, nil
}

func (e *Evaluator) encodeDivide(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	fs, err := e.numbers(spec, "divide", ctx)
	if err != nil {
		return nil, err
	}
	if len(fs) < 2 {
		return nil, NewError(spec, ctx, TypeMismatch, "expected at least two numbers")
	}
	acc := fs[0]
	for _, f := range fs[1:] {
		if f == 0 {
			return nil, NewError(spec, ctx, DivisionByZero, "")
		}
		acc /= f
	}
	return fixed(spec, ctx, acc)
}

// fixed renders f with spec["decimals"] digits if that's given.
func fixed(spec map[string]interface{}, ctx *Context, f float64) (interface{}, error) {
	d, have := spec["decimals"]
	if !have {
		return f, nil
	}
	n, is := Number(d)
	if !is || n < 0 {
		return nil, Mismatch(spec, ctx, "non-negative number", d)
	}
	return strconv.FormatFloat(f, 'f', int(n), 64), nil
}

func (e *Evaluator) encodePercent(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	p, is := spec["percent"].(map[string]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "object", spec["percent"])
	}
	v, err := e.sub(p, "num", ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	num, is := Number(v)
	if !is {
		return nil, Mismatch(spec, ctx, "number", v)
	}
	if v, err = e.sub(p, "den", ctx); err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	den, is := Number(v)
	if !is {
		return nil, Mismatch(spec, ctx, "number", v)
	}
	if den == 0 {
		return nil, NewError(spec, ctx, DivisionByZero, "")
	}
	return fixed(p, ctx, math.Floor(num*100/den))
}

func (e *Evaluator) encodeSizeOf(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.sub(spec, "size_of", ctx)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case nil, bool:
		return float64(0), nil
	case string:
		return float64(len([]rune(vv))), nil
	case []interface{}:
		return float64(len(vv)), nil
	case map[string]interface{}:
		return float64(len(vv)), nil
	}
	return nil, Mismatch(spec, ctx, "text, list or object", v)
}

func (e *Evaluator) encodePipeline(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	steps, err := specs(spec, "pipeline", ctx)
	if err != nil {
		return nil, err
	}
	as := alias(spec, "items")
	at := ctx
	v, _ := ctx.Get(as)
	for _, s := range steps {
		if v, err = e.Encode(s, at); err != nil {
			return nil, Wrap(spec, at, err)
		}
		at = at.With(as, v)
	}
	return v, nil
}

// encodeMapping is "map" and "flat_map".
func (e *Evaluator) encodeMapping(spec map[string]interface{}, src interface{}, ctx *Context, flat bool) (interface{}, error) {
	if IsEmpty(src) {
		src = "@items"
	}
	v, err := e.Encode(src, ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	items, is := v.([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list", v)
	}
	as := alias(spec, "item")
	acc := make([]interface{}, 0, len(items))
	for _, item := range items {
		itemCtx := ctx.With(as, item)
		x, err := e.Encode(spec["with"], itemCtx)
		if err != nil {
			return nil, Wrap(spec, itemCtx, err)
		}
		acc = append(acc, x)
	}
	if flat {
		acc = flatten(acc)
	}
	return acc, nil
}

// encodeFilter is "filter" (keep is true) and "reject" (keep is
// false).  The "with" pattern is matched against each item.
func (e *Evaluator) encodeFilter(spec map[string]interface{}, src interface{}, ctx *Context, keep bool) (interface{}, error) {
	if IsEmpty(src) {
		src = "@items"
	}
	v, err := e.Encode(src, ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	items, is := v.([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list", v)
	}
	as := alias(spec, "item")
	acc := make([]interface{}, 0, len(items))
	for _, item := range items {
		itemCtx := ctx.With(as, item)
		_, err := e.Decode(spec["with"], item, itemCtx)
		if err != nil && !Is(err, NoMatch) {
			return nil, Wrap(spec, itemCtx, err)
		}
		if (err == nil) == keep {
			acc = append(acc, item)
		}
	}
	return acc, nil
}

func (e *Evaluator) encodeUnique(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	v, err := e.Encode(source(spec, "unique"), ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	items, is := v.([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list", v)
	}
	by := spec["by"]
	if by == nil {
		by = "@item"
	}
	as := alias(spec, "item")

	var (
		order []string
		index = make(map[string]interface{}, len(items))
	)
	for _, item := range items {
		if item == nil {
			continue
		}
		itemCtx := ctx.With(as, item)
		k, err := e.Encode(by, itemCtx)
		if err != nil {
			return nil, Wrap(spec, itemCtx, err)
		}
		key, is := k.(string)
		if !is || key == "" {
			return nil, Mismatch(spec, itemCtx, "non-empty text", k)
		}
		if _, have := index[key]; !have {
			order = append(order, key)
		}
		index[key] = item
	}
	acc := make([]interface{}, len(order))
	for i, key := range order {
		acc[i] = index[key]
	}
	return acc, nil
}

func (e *Evaluator) encodeAdd(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	item, err := e.sub(spec, "add", ctx)
	if err != nil {
		return nil, err
	}
	col, err := e.subList(spec, "to", ctx)
	if err != nil {
		return nil, err
	}
	acc := make([]interface{}, len(col), len(col)+1)
	copy(acc, col)
	return append(acc, item), nil
}

func (e *Evaluator) encodeRemove(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	item, err := e.sub(spec, "remove", ctx)
	if err != nil {
		return nil, err
	}
	col, err := e.subList(spec, "from", ctx)
	if err != nil {
		return nil, err
	}
	acc := make([]interface{}, 0, len(col))
	for _, x := range col {
		if !Equal(x, item) {
			acc = append(acc, x)
		}
	}
	return acc, nil
}

func (e *Evaluator) encodeCombine(spec map[string]interface{}, ctx *Context) (interface{}, error) {
	src, err := e.Encode(source(spec, "combine"), ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	dst, err := e.sub(spec, "with", ctx)
	if err != nil {
		return nil, err
	}
	if TypeOf(src) != TypeOf(dst) {
		return nil, Mismatch(spec, ctx, TypeOf(src), dst)
	}
	switch vv := src.(type) {
	case map[string]interface{}:
		acc := Copy(vv)
		for k, v := range dst.(map[string]interface{}) {
			acc[k] = v
		}
		return acc, nil
	case []interface{}:
		acc := append([]interface{}{}, vv...)
		return append(acc, dst.([]interface{})...), nil
	case string:
		return vv + dst.(string), nil
	}
	if a, is := Number(src); is {
		b, _ := Number(dst)
		return a + b, nil
	}
	return nil, Mismatch(spec, ctx, "object, list, text or number", src)
}

// encodeIndex is "index" and, when grouping, "group".
func (e *Evaluator) encodeIndex(spec map[string]interface{}, ctx *Context, grouping bool) (interface{}, error) {
	key := "index"
	if grouping {
		key = "group"
	}
	v, err := e.Encode(source(spec, key), ctx)
	if err != nil {
		return nil, Wrap(spec, ctx, err)
	}
	items, is := v.([]interface{})
	if !is {
		return nil, Mismatch(spec, ctx, "list", v)
	}
	by := spec["with"]
	if IsEmpty(by) {
		by = "@item.id"
	}
	as := alias(spec, "item")
	acc := make(map[string]interface{}, len(items))
	for _, item := range items {
		itemCtx := ctx.With(as, item)
		k, err := e.Encode(by, itemCtx)
		if err != nil {
			return nil, Wrap(spec, itemCtx, err)
		}
		name, is := k.(string)
		if !is {
			return nil, Mismatch(spec, itemCtx, "text", k)
		}
		if !grouping {
			acc[name] = item
			continue
		}
		group, _ := acc[name].([]interface{})
		acc[name] = append(group, item)
	}
	return acc, nil
}

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
	"sort"
	"strconv"
	"strings"
)

// Context is an immutable, layered name-to-value environment.
//
// Each Context has an optional parent.  Get consults the innermost
// layer first.  The nil *Context is valid and empty, but a path
// lookup against it fails with MissingContext.
type Context struct {
	parent *Context
	vars   map[string]interface{}
}

// NewContext makes a Context from the given layers, outermost first.
//
// The maps are not copied, so callers should not modify them
// afterwards.
func NewContext(layers ...map[string]interface{}) *Context {
	var c *Context
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		c = c.Extend(layer)
	}
	if c == nil {
		c = &Context{}
	}
	return c
}

// With returns a child Context that binds name to v.
func (c *Context) With(name string, v interface{}) *Context {
	return &Context{
		parent: c,
		vars:   map[string]interface{}{name: v},
	}
}

// Extend returns a child Context whose bindings are the given map.
func (c *Context) Extend(m map[string]interface{}) *Context {
	return &Context{
		parent: c,
		vars:   m,
	}
}

// Get finds the innermost binding for name.
func (c *Context) Get(name string) (interface{}, bool) {
	for at := c; at != nil; at = at.parent {
		if v, have := at.vars[name]; have {
			return v, true
		}
	}
	return nil, false
}

// Map returns a new map with all visible bindings.
func (c *Context) Map() map[string]interface{} {
	if c == nil {
		return nil
	}
	var layers []*Context
	for at := c; at != nil; at = at.parent {
		layers = append(layers, at)
	}
	m := make(map[string]interface{}, 8)
	for i := len(layers) - 1; 0 <= i; i-- {
		for k, v := range layers[i].vars {
			m[k] = v
		}
	}
	return m
}

func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// Lookup resolves a path like "@model.items.0" (or "model.items.0").
//
// The segment "$" means "all the values of the map here", ordered by
// key, unless the map actually has a "$" key.
func (c *Context) Lookup(path string) (interface{}, error) {
	if c == nil {
		return nil, NewError(path, nil, MissingContext, "")
	}
	p := strings.TrimPrefix(path, "@")
	if p == "" {
		return c.Map(), nil
	}

	segs := strings.Split(p, ".")
	var (
		v    interface{}
		have bool
	)
	if segs[0] == "$" {
		if v, have = c.Get("$"); !have {
			v = Values(c.Map())
		}
	} else if v, have = c.Get(segs[0]); !have {
		return nil, NewError(path, c, MissingKey, segs[0])
	}

	for _, seg := range segs[1:] {
		if v, have = getIn(v, seg); !have {
			return nil, NewError(path, c, MissingKey, seg)
		}
	}
	return v, nil
}

func getIn(x interface{}, seg string) (interface{}, bool) {
	switch vv := x.(type) {
	case map[string]interface{}:
		if v, have := vv[seg]; have {
			return v, true
		}
		if seg == "$" {
			return Values(vv), true
		}
	case []interface{}:
		if seg == "length" {
			return float64(len(vv)), true
		}
		if i, err := strconv.Atoi(seg); err == nil && 0 <= i && i < len(vv) {
			return vv[i], true
		}
	case string:
		if seg == "length" {
			return float64(len([]rune(vv))), true
		}
	}
	return nil, false
}

// Values returns the map's values ordered by key.
func Values(m map[string]interface{}) []interface{} {
	acc := make([]interface{}, 0, len(m))
	for _, k := range Keys(m) {
		acc = append(acc, m[k])
	}
	return acc
}

// Keys returns the map's keys in order.
func Keys(m map[string]interface{}) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

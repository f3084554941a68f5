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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLayers(t *testing.T) {
	settings := map[string]interface{}{"a": "settings", "s": 1.0}
	model := map[string]interface{}{"a": "model"}
	ctx := NewContext(settings, nil, model)

	v, have := ctx.Get("a")
	require.True(t, have)
	assert.Equal(t, "model", v)

	v, have = ctx.Get("s")
	require.True(t, have)
	assert.Equal(t, 1.0, v)

	_, have = ctx.Get("nope")
	assert.False(t, have)

	assert.Equal(t, map[string]interface{}{"a": "model", "s": 1.0}, ctx.Map())
}

func TestContextImmutable(t *testing.T) {
	ctx := NewContext(map[string]interface{}{"x": 1.0})
	child := ctx.With("x", 2.0).Extend(map[string]interface{}{"y": 3.0})

	v, _ := child.Get("x")
	assert.Equal(t, 2.0, v)
	v, _ = ctx.Get("x")
	assert.Equal(t, 1.0, v)
	_, have := ctx.Get("y")
	assert.False(t, have)
}

func TestContextLookup(t *testing.T) {
	ctx := NewContext(map[string]interface{}{
		"model": map[string]interface{}{
			"items": []interface{}{"a", "bc"},
			"$":     "dollar",
		},
	})

	for path, want := range map[string]interface{}{
		"@model.items.0":        "a",
		"model.items.1":         "bc",
		"@model.items.1.length": 2.0,
		"@model.items.length":   2.0,
		"@model.$":              "dollar",
	} {
		v, err := ctx.Lookup(path)
		if assert.NoError(t, err, path) {
			assert.Equal(t, want, v, path)
		}
	}

	for _, path := range []string{"@model.items.2", "@model.items.-1", "@model.nope", "@nope"} {
		_, err := ctx.Lookup(path)
		assert.True(t, Is(err, MissingKey), "%s: %v", path, err)
	}

	var nothing *Context
	_, err := nothing.Lookup("@x")
	assert.True(t, Is(err, MissingContext))
}

func TestContextDollar(t *testing.T) {
	ctx := NewContext(map[string]interface{}{"b": 2.0, "a": 1.0})
	v, err := ctx.Lookup("@$")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0}, v)
}

func TestContextJSON(t *testing.T) {
	ctx := NewContext(map[string]interface{}{"a": 1.0}).With("b", "x")
	js, err := json.Marshal(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":"x"}`, string(js))
}

func TestKeysValues(t *testing.T) {
	m := map[string]interface{}{"c": 3.0, "a": 1.0, "b": 2.0}
	assert.Equal(t, []string{"a", "b", "c"}, Keys(m))
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, Values(m))
}

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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	for _, c := range []struct {
		spec map[string]interface{}
		want Form
	}{
		{map[string]interface{}{}, FormEmpty},
		{map[string]interface{}{"text": false}, FormText},
		{map[string]interface{}{"key": "@x", "text": 1.0}, FormText},
		{map[string]interface{}{"key": "@x"}, FormKey},
		{map[string]interface{}{"key": "x"}, FormImplicit},
		{map[string]interface{}{"switch": []interface{}{}, "format": "x"}, FormSwitch},
		{map[string]interface{}{"format": "", "params": 1.0}, FormImplicit},
		{map[string]interface{}{"format": "{{x}}", "params": 1.0}, FormFormat},
		{map[string]interface{}{"not": false}, FormNot},
		{map[string]interface{}{"map": "@xs", "with": "@item"}, FormMap},
		{map[string]interface{}{"data": nil}, FormData},
		{map[string]interface{}{"merged_list": []interface{}{}}, FormConcat},
		{map[string]interface{}{"one_of": []interface{}{1.0}}, FormOneOf},
		{map[string]interface{}{"name": "x", "age": 3.0}, FormImplicit},
	} {
		assert.Equal(t, c.want, Classify(c.spec), "%v", c.spec)
	}
}

func TestRuleRecognizes(t *testing.T) {
	r := Rule{"key", FormKey, BySigil}
	assert.True(t, r.Recognizes(map[string]interface{}{"key": "@a"}))
	assert.False(t, r.Recognizes(map[string]interface{}{"key": 1.0}))
	assert.False(t, r.Recognizes(map[string]interface{}{"other": "@a"}))

	r = Rule{"and", FormAnd, ByTruthiness}
	assert.False(t, r.Recognizes(map[string]interface{}{"and": 0.0}))
	assert.True(t, r.Recognizes(map[string]interface{}{"and": []interface{}{}}))
}

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

package app

import (
	"fmt"

	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/match"
)

// Decoder is a message name and the pattern that recognizes it.
type Decoder struct {
	Message string      `json:"message"`
	Pattern interface{} `json:"pattern"`
}

// DecoderGroup is a group of decoders from the app's decoders
// section.  The group's name is the default effect name.
type DecoderGroup struct {
	Name     string     `json:"name"`
	Decoders []*Decoder `json:"decoders"`
}

// Index maps effect names to decoders in precedence order.
type Index map[string][]*Decoder

// CompileIndex builds an Index.
//
// A decoder belongs to its group's effect unless its pattern is an
// object pattern with an "effect" property.  That property is
// evaluated (with an empty context) to get the effect name, and it's
// removed from the pattern, since events lose their "effect" before
// decoding.
func CompileIndex(ev *core.Evaluator, groups []*DecoderGroup) (Index, error) {
	idx := make(Index, len(groups))
	for _, g := range groups {
		for _, d := range g.Decoders {
			effect, pattern, err := resolveEffect(ev, g.Name, d.Pattern)
			if err != nil {
				return nil, fmt.Errorf("decoder %s/%s: %w", g.Name, d.Message, err)
			}
			idx[effect] = append(idx[effect], &Decoder{
				Message: d.Message,
				Pattern: pattern,
			})
		}
	}
	return idx, nil
}

func resolveEffect(ev *core.Evaluator, group string, pattern interface{}) (string, interface{}, error) {
	p, is := pattern.(map[string]interface{})
	if !is {
		return group, pattern, nil
	}
	obj, is := p["object"].(map[string]interface{})
	if !is {
		return group, pattern, nil
	}
	spec, have := obj["effect"]
	if !have {
		return group, pattern, nil
	}
	v, err := ev.Encode(spec, core.NewContext())
	if err != nil {
		return "", nil, err
	}
	name, is := v.(string)
	if !is || name == "" {
		return "", nil, core.Mismatch(spec, nil, "effect name", v)
	}

	props := core.Copy(obj)
	delete(props, "effect")
	p = core.Copy(p)
	p["object"] = props
	if len(props) == 0 {
		// The "object" form needs a non-empty map.
		return name, map[string]interface{}{}, nil
	}
	return name, p, nil
}

// Match tries the effect's decoders in order and returns the first
// message whose pattern matches the data.
//
// When none matches, the error has reason AllDecodersFailed.  Its
// cause is the last error that wasn't a NoMatch, if any.
func (idx Index) Match(ev *core.Evaluator, effect string, data interface{}, ctx *core.Context) (string, interface{}, error) {
	ds := idx[effect]
	if len(ds) == 0 {
		return "", nil, core.NewError(data, ctx, core.NoDecoders, effect)
	}
	var problem error
	for _, d := range ds {
		decoded, err := ev.Decode(d.Pattern, data, ctx)
		if err == nil {
			return d.Message, decoded, nil
		}
		if !match.IsNoMatch(err) {
			problem = err
		}
	}
	return "", nil, &core.Error{
		Spec:   data,
		Ctx:    ctx,
		Reason: core.AllDecodersFailed,
		Detail: effect,
		Cause:  problem,
	}
}

// Messages returns the names of the messages the index can produce.
func (idx Index) Messages() map[string][]string {
	acc := make(map[string][]string, len(idx))
	for effect, ds := range idx {
		for _, d := range ds {
			acc[d.Message] = append(acc[d.Message], effect)
		}
	}
	return acc
}

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
	"github.com/Comcast/elementary/core"
)

// Stride is the result of one update cycle.
//
// Model is the complete new model.  The caller commits it and then
// dispatches the Cmds.
type Stride struct {
	Effect  string      `json:"effect,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`

	// Clause is the index of the selected update clause or -1
	// for an unconditional update.
	Clause int `json:"clause"`

	Model map[string]interface{} `json:"model"`

	// Changed reports whether the update had a model section.
	Changed bool `json:"changed,omitempty"`

	Cmds []*Command `json:"cmds,omitempty"`

	// Problems are commands that were skipped.
	Problems []string `json:"problems,omitempty"`
}

func (a *App) tc(what string, f func() error) error {
	if a.TC == nil {
		return f()
	}
	return a.TC(what, f)
}

// Start computes the initial model and commands from the app's init
// section.
//
// The model is the app's facts overlaid with the evaluated
// init.model.  The context is just the settings.
func (a *App) Start() (*Stride, error) {
	if !a.Compiled() {
		return nil, ErrNotCompiled
	}

	model := core.Copy(a.Facts)
	if a.Init.Model != nil {
		v, err := a.ev.Encode(a.Init.Model, a.Context())
		if err != nil {
			return nil, err
		}
		m, is := v.(map[string]interface{})
		if !is {
			return nil, core.Mismatch(a.Init.Model, nil, "object", v)
		}
		for k, x := range m {
			model[k] = x
		}
	}

	s := &Stride{
		Clause:  -1,
		Model:   model,
		Changed: true,
	}
	if err := a.cmds(s, a.Init.Cmds); err != nil {
		return nil, err
	}
	return s, nil
}

// Step runs an update cycle for the event against the model.
//
// The given model is not modified.  Any error means the cycle
// aborted and nothing should be committed.
func (a *App) Step(model map[string]interface{}, event map[string]interface{}) (*Stride, error) {
	if !a.Compiled() {
		return nil, ErrNotCompiled
	}

	effect, _ := event["effect"].(string)
	if effect == "" {
		return nil, core.NewError(event, nil, core.MissingEffect, "")
	}
	data := core.Copy(event)
	delete(data, "effect")

	s := &Stride{
		Effect: effect,
		Clause: -1,
		Model:  model,
	}

	err := a.tc("decode", func() error {
		msg, decoded, err := a.index.Match(a.ev, effect, data, a.Context(model))
		s.Message, s.Data = msg, decoded
		return err
	})
	if err != nil {
		return nil, err
	}

	var clause map[string]interface{}
	err = a.tc("update", func() error {
		var err error
		clause, err = a.update(s, model)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = a.tc("cmds", func() error {
		return a.cmds(s, clause["cmds"])
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// update selects the clause for s.Message and computes the new
// model.
func (a *App) update(s *Stride, model map[string]interface{}) (map[string]interface{}, error) {
	spec, have := a.Update[s.Message]
	if !have {
		return nil, core.NewError(s.Message, nil, core.NoSuchUpdate, s.Message)
	}

	ctx := a.Context(map[string]interface{}{
		"model": model,
		"data":  s.Data,
	})

	var clause map[string]interface{}
	switch vv := spec.(type) {
	case map[string]interface{}:
		clause = vv
	case []interface{}:
		for i, c := range vv {
			m, is := c.(map[string]interface{})
			if !is {
				return nil, core.Mismatch(spec, ctx, "clause", c)
			}
			cond, have := m["condition"]
			if !have {
				clause, s.Clause = m, i
				break
			}
			v, err := a.ev.Encode(cond, ctx)
			if err != nil {
				return nil, core.Wrap(spec, ctx, err)
			}
			if core.Truthy(v) {
				clause, s.Clause = m, i
				break
			}
		}
		if clause == nil {
			return nil, core.NewError(spec, ctx, core.AllConditionsFailed, s.Message)
		}
	default:
		return nil, core.Mismatch(spec, ctx, "clause or list of clauses", spec)
	}

	if where, have := clause["where"]; have {
		v, err := a.ev.Encode(where, ctx)
		if err != nil {
			return nil, core.Wrap(clause, ctx, err)
		}
		m, is := v.(map[string]interface{})
		if !is {
			return nil, core.Mismatch(where, ctx, "object", v)
		}
		ctx = ctx.Extend(m)
	}

	patch, have := clause["model"]
	if !have {
		return clause, nil
	}
	v, err := a.ev.Encode(patch, ctx)
	if err != nil {
		return nil, core.Wrap(clause, ctx, err)
	}
	m, is := v.(map[string]interface{})
	if !is {
		return nil, core.Mismatch(patch, ctx, "object", v)
	}
	next := core.Copy(model)
	for k, x := range m {
		next[k] = x
	}
	s.Model = next
	s.Changed = true
	return clause, nil
}

// cmds evaluates the cmds spec (if any) against the stride's model.
func (a *App) cmds(s *Stride, spec interface{}) error {
	if spec == nil {
		return nil
	}
	v, err := a.ev.Encode(spec, a.Context(s.Model))
	if err != nil {
		return err
	}
	cmds, problems := Commands(v)
	s.Cmds = cmds
	for _, p := range problems {
		s.Problems = append(s.Problems, p.Error())
	}
	return nil
}

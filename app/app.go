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

// Package app loads, compiles, and steps applications.
//
// An App is a document with these sections:
//
//   name, doc: optional descriptions
//   init:      {model: Spec, cmds: Spec}
//   encoders:  named specs for the "encoder" form and for commands
//   decoders:  effect group -> message name -> pattern
//   update:    message name -> clause or list of clauses
//   views:     named specs evaluated against the model
//   settings:  the outermost layer of every context
//   effects:   effect name -> {settings}
//   facts:     static data merged into the initial model
//
// After Compile, Init and Step compute update cycles.  Neither one
// changes anything.  The caller (see package sio) owns the model and
// commits what a Stride says.
package app

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/match"

	"github.com/jsccast/yaml"
)

var (
	// ErrNotCompiled is returned when an App is used before
	// Compile.
	ErrNotCompiled = errors.New("app not compiled")
)

// Init is the app's init section.
type Init struct {
	Model interface{} `json:"model,omitempty"`
	Cmds  interface{} `json:"cmds,omitempty"`
}

// EffectConf configures an effect.
type EffectConf struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// App is an application.
type App struct {
	Name     string                 `json:"name,omitempty"`
	Doc      string                 `json:"doc,omitempty"`
	Init     Init                   `json:"init"`
	Encoders map[string]interface{} `json:"encoders,omitempty"`
	Decoders []*DecoderGroup        `json:"decoders,omitempty"`
	Update   map[string]interface{} `json:"update,omitempty"`
	Views    map[string]interface{} `json:"views,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Effects  map[string]*EffectConf `json:"effects,omitempty"`
	Facts    map[string]interface{} `json:"facts,omitempty"`

	// TC, if not nil, times the phases of an update cycle.
	TC func(what string, f func() error) error `json:"-"`

	ev    *core.Evaluator
	index Index
}

// ReadFile reads an App from a YAML or JSON file.
//
// The file can '%inline("NAME")' other files.  See Inline.
func ReadFile(filename string) (*App, error) {
	bs, err := ReadFileWithInlines(filename)
	if err != nil {
		return nil, err
	}
	a, err := Read(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return a, nil
}

// Read parses an App from YAML (or JSON).
//
// The order of decoder groups and of the decoders within each group
// is preserved.
func Read(bs []byte) (*App, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, err
	}
	if err := checkKeys(doc); err != nil {
		return nil, err
	}

	a := &App{}
	for _, item := range doc {
		key := fmt.Sprint(item.Key)
		if key == "decoders" {
			groups, err := readGroups(item.Value)
			if err != nil {
				return nil, err
			}
			a.Decoders = groups
			continue
		}

		v := Plain(item.Value)
		var err error
		switch key {
		case "name":
			a.Name = core.Text(v)
		case "doc":
			a.Doc = core.Text(v)
		case "init":
			m, is := v.(map[string]interface{})
			if !is && v != nil {
				err = fmt.Errorf("init should be a map, not a %s", core.TypeOf(v))
			}
			a.Init = Init{
				Model: m["model"],
				Cmds:  m["cmds"],
			}
		case "encoders":
			a.Encoders, err = asMap(key, v)
		case "update":
			a.Update, err = asMap(key, v)
		case "views":
			a.Views, err = asMap(key, v)
		case "settings":
			a.Settings, err = asMap(key, v)
		case "facts":
			a.Facts, err = asMap(key, v)
		case "effects":
			var m map[string]interface{}
			if m, err = asMap(key, v); err == nil {
				a.Effects = make(map[string]*EffectConf, len(m))
				for name, x := range m {
					conf := &EffectConf{}
					if xm, is := x.(map[string]interface{}); is {
						conf.Settings, _ = xm["settings"].(map[string]interface{})
					}
					a.Effects[name] = conf
				}
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func asMap(section string, v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	m, is := v.(map[string]interface{})
	if !is {
		return nil, fmt.Errorf("%s should be a map, not a %s", section, core.TypeOf(v))
	}
	return m, nil
}

// checkKeys rejects map keys that didn't parse as strings.  YAML
// reads an unquoted y, n, yes, no, on, or off as a boolean and 12 as
// a number, so such keys have to be quoted.
func checkKeys(x interface{}) error {
	check := func(k, v interface{}) error {
		if _, is := k.(string); !is {
			return core.NewError(k, nil, core.InvalidSpec,
				fmt.Sprintf("%s key %v should be quoted", core.TypeOf(k), k))
		}
		return checkKeys(v)
	}
	switch vv := x.(type) {
	case yaml.MapSlice:
		for _, item := range vv {
			if err := check(item.Key, item.Value); err != nil {
				return err
			}
		}
	case map[interface{}]interface{}:
		for k, v := range vv {
			if err := check(k, v); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, v := range vv {
			if err := checkKeys(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Plain converts parsed YAML into the usual JSON-like
// representation: string-keyed maps, []interface{}, and float64 for
// all numbers.
func Plain(x interface{}) interface{} {
	switch vv := x.(type) {
	case yaml.MapSlice:
		m := make(map[string]interface{}, len(vv))
		for _, item := range vv {
			m[fmt.Sprint(item.Key)] = Plain(item.Value)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[k] = Plain(v)
		}
		return m
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[fmt.Sprint(k)] = Plain(v)
		}
		return m
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, v := range vv {
			acc[i] = Plain(v)
		}
		return acc
	case int:
		return float64(vv)
	case int64:
		return float64(vv)
	case uint64:
		return float64(vv)
	case float32:
		return float64(vv)
	}
	return x
}

// readGroups reads the decoders section in order.
func readGroups(x interface{}) ([]*DecoderGroup, error) {
	var groups []*DecoderGroup
	for _, item := range ordered(x) {
		g := &DecoderGroup{
			Name: item.Key,
		}
		switch vv := item.Value.(type) {
		case string:
			// Shorthand for a single message that takes any map.
			g.Decoders = []*Decoder{{
				Message: vv,
				Pattern: map[string]interface{}{},
			}}
		case yaml.MapSlice, map[string]interface{}, map[interface{}]interface{}:
			for _, d := range ordered(vv) {
				g.Decoders = append(g.Decoders, &Decoder{
					Message: d.Key,
					Pattern: Plain(d.Value),
				})
			}
		default:
			return nil, fmt.Errorf("decoders for %s should be a map or a message name", item.Key)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

type entry struct {
	Key   string
	Value interface{}
}

// ordered returns a map's entries in document order (for a
// yaml.MapSlice) or in key order.
func ordered(x interface{}) []entry {
	var acc []entry
	switch vv := x.(type) {
	case yaml.MapSlice:
		for _, item := range vv {
			acc = append(acc, entry{fmt.Sprint(item.Key), item.Value})
		}
	case map[string]interface{}:
		for k, v := range vv {
			acc = append(acc, entry{k, v})
		}
		sort.Slice(acc, func(i, j int) bool { return acc[i].Key < acc[j].Key })
	case map[interface{}]interface{}:
		for k, v := range vv {
			acc = append(acc, entry{fmt.Sprint(k), v})
		}
		sort.Slice(acc, func(i, j int) bool { return acc[i].Key < acc[j].Key })
	}
	return acc
}

// Compile makes the app's Evaluator and its decoder Index.
func (a *App) Compile() error {
	ev := match.NewEvaluator(a.Encoders)
	index, err := CompileIndex(ev, a.Decoders)
	if err != nil {
		return err
	}
	a.ev = ev
	a.index = index
	return nil
}

// Compiled reports whether Compile succeeded.
func (a *App) Compiled() bool {
	return a.ev != nil
}

// Evaluator returns the app's Evaluator, which is nil until Compile.
func (a *App) Evaluator() *core.Evaluator {
	return a.ev
}

// Index returns the compiled decoder index.
func (a *App) Index() Index {
	return a.index
}

// EffectSettings returns the app's settings overlaid with the named
// effect's settings.
func (a *App) EffectSettings(name string) map[string]interface{} {
	acc := core.Copy(a.Settings)
	if conf, have := a.Effects[name]; have && conf != nil {
		for k, v := range conf.Settings {
			acc[k] = v
		}
	}
	return acc
}

// Context makes a Context with the app's settings as the outermost
// layer.
func (a *App) Context(layers ...map[string]interface{}) *core.Context {
	return core.NewContext(append([]map[string]interface{}{a.Settings}, layers...)...)
}

// Snapshot returns a new map with the model's properties over the
// app's settings.  Effects see this map.
func (a *App) Snapshot(model map[string]interface{}) map[string]interface{} {
	acc := core.Copy(a.Settings)
	for k, v := range model {
		acc[k] = v
	}
	return acc
}

// Setting returns the named setting's truthiness.
func (a *App) Setting(name string) bool {
	return core.Truthy(a.Settings[name])
}

// View evaluates the named view against the model.
func (a *App) View(name string, model map[string]interface{}) (interface{}, error) {
	if !a.Compiled() {
		return nil, ErrNotCompiled
	}
	spec, have := a.Views[name]
	if !have {
		return nil, core.NewError(name, nil, core.NoSuchView, name)
	}
	return a.ev.Encode(spec, a.Context(model))
}

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

package tools

import (
	"sort"
	"strings"

	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/core"
)

// Analysis reports the structure of an app and problems that can be
// found without running it.
//
// Commands are found only where their effect and encoder are literal
// names.  A command computed from the model is invisible here.
type Analysis struct {
	app *app.App

	Messages int
	Decoders int
	Updates  int
	Encoders int
	Views    int

	Errors []string

	// Effects are the configured effects.
	Effects []string

	// Commands are the literal commands (as "effect" or
	// "effect/encoder") in init and update clauses.
	Commands []string

	// UnhandledMessages have decoders but no update.
	UnhandledMessages []string

	// UndecodedMessages have an update but no decoder.
	UndecodedMessages []string

	// MissingEncoders are referenced but not defined.
	MissingEncoders []string

	// UnusedEncoders are defined but never referenced by name.
	UnusedEncoders []string

	// MissingEffects are commanded but not configured.
	MissingEffects []string
}

// OK reports whether the analysis found no problems.
func (a *Analysis) OK() bool {
	return len(a.Errors) == 0 &&
		len(a.UnhandledMessages) == 0 &&
		len(a.MissingEncoders) == 0 &&
		len(a.MissingEffects) == 0
}

// Analyze examines the app, which is compiled if necessary.
func Analyze(a *app.App) (*Analysis, error) {
	if !a.Compiled() {
		if err := a.Compile(); err != nil {
			return nil, err
		}
	}

	x := Analysis{
		app:      a,
		Updates:  len(a.Update),
		Encoders: len(a.Encoders),
		Views:    len(a.Views),
		Errors:   make([]string, 0, 8),
	}

	messages := a.Index().Messages()
	x.Messages = len(messages)
	for _, ds := range a.Index() {
		x.Decoders += len(ds)
	}

	var (
		cmds       = make(map[string]bool)
		effects    = make(map[string]bool)
		referenced = make(map[string]bool)
		unhandled  = make(map[string]bool)
		undecoded  = make(map[string]bool)
	)

	for name := range a.Effects {
		effects[name] = true
	}

	for msg := range messages {
		if _, have := a.Update[msg]; !have {
			unhandled[msg] = true
		}
	}

	note := func(cmd *app.Command) {
		cmds[cmd.String()] = true
		if cmd.Encoder != "" {
			referenced[cmd.Encoder] = true
		}
	}

	for _, cmd := range literalCmds(a.Init.Cmds) {
		note(cmd)
	}
	encoderRefs(a.Init.Model, referenced)

	for msg, spec := range a.Update {
		if _, have := messages[msg]; !have {
			undecoded[msg] = true
		}
		var clauses []interface{}
		switch vv := spec.(type) {
		case map[string]interface{}:
			clauses = []interface{}{vv}
		case []interface{}:
			clauses = vv
		default:
			x.Errors = append(x.Errors, "update for "+msg+" should be a clause or a list of clauses, not a "+core.TypeOf(spec))
			continue
		}
		for _, c := range clauses {
			clause, is := c.(map[string]interface{})
			if !is {
				x.Errors = append(x.Errors, "update for "+msg+" has a "+core.TypeOf(c)+" clause")
				continue
			}
			for _, cmd := range literalCmds(clause["cmds"]) {
				note(cmd)
			}
			encoderRefs(clause, referenced)
		}
	}

	for _, spec := range a.Views {
		encoderRefs(spec, referenced)
	}
	for _, spec := range a.Encoders {
		encoderRefs(spec, referenced)
	}

	missingEncoders, missingEffects := make(map[string]bool), make(map[string]bool)
	for name := range referenced {
		if _, have := a.Encoders[name]; !have {
			missingEncoders[name] = true
		}
	}
	for cmd := range cmds {
		effect := strings.SplitN(cmd, "/", 2)[0]
		if !effects[effect] {
			missingEffects[effect] = true
		}
	}

	x.Effects = keysToStringSlice(effects)
	x.Commands = keysToStringSlice(cmds)
	x.UnhandledMessages = keysToStringSlice(unhandled)
	x.UndecodedMessages = keysToStringSlice(undecoded)
	x.MissingEncoders = keysToStringSlice(missingEncoders)
	x.UnusedEncoders = keysToStringSlice(diffKeys(a.Encoders, referenced))
	x.MissingEffects = keysToStringSlice(missingEffects)

	return &x, nil
}

// literalCmds finds the commands in a cmds spec whose names don't
// depend on evaluation.
func literalCmds(spec interface{}) []*app.Command {
	var acc []*app.Command
	add := func(effect, enc interface{}) {
		e, is := literal(effect)
		if !is || e == "" {
			return
		}
		cmd := &app.Command{Effect: e}
		if !core.IsEmpty(enc) {
			if cmd.Encoder, is = literal(enc); !is {
				return
			}
		}
		acc = append(acc, cmd)
	}

	switch vv := spec.(type) {
	case map[string]interface{}:
		switch core.Classify(vv) {
		case core.FormImplicit:
			for _, effect := range core.Keys(vv) {
				add(effect, vv[effect])
			}
		case core.FormEffect:
			add(vv["effect"], vv["encoder"])
		default:
			acc = append(acc, effectForms(vv)...)
		}
	case []interface{}:
		for _, x := range vv {
			switch xx := x.(type) {
			case string:
				add(xx, nil)
			case map[string]interface{}:
				if core.Classify(xx) == core.FormImplicit && len(xx) == 1 {
					for effect, enc := range xx {
						add(effect, enc)
					}
					continue
				}
				acc = append(acc, literalCmds(xx)...)
			}
		}
	}
	return acc
}

// effectForms finds "effect" forms anywhere in a spec.
func effectForms(spec interface{}) []*app.Command {
	var acc []*app.Command
	switch vv := spec.(type) {
	case map[string]interface{}:
		if core.Classify(vv) == core.FormEffect {
			return literalCmds(vv)
		}
		for _, k := range core.Keys(vv) {
			acc = append(acc, effectForms(vv[k])...)
		}
	case []interface{}:
		for _, x := range vv {
			acc = append(acc, effectForms(x)...)
		}
	}
	return acc
}

// encoderRefs notes the names used by "encoder" forms.
func encoderRefs(spec interface{}, acc map[string]bool) {
	switch vv := spec.(type) {
	case map[string]interface{}:
		switch core.Classify(vv) {
		case core.FormEncoder, core.FormEffect:
			if name, is := literal(vv["encoder"]); is && name != "" {
				acc[name] = true
			}
		}
		for _, x := range vv {
			encoderRefs(x, acc)
		}
	case []interface{}:
		for _, x := range vv {
			encoderRefs(x, acc)
		}
	}
}

// literal returns a string that isn't a context reference.
func literal(x interface{}) (string, bool) {
	s, is := x.(string)
	if !is || strings.HasPrefix(s, "@") {
		return "", false
	}
	return s, true
}

// keysToStringSlice returns the map's keys in order.
func keysToStringSlice(m map[string]bool) []string {
	list := make([]string, 0, len(m))
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}

// diffKeys returns the keys of all that aren't used.
func diffKeys(all map[string]interface{}, used map[string]bool) map[string]bool {
	acc := make(map[string]bool)
	for k := range all {
		if !used[k] {
			acc[k] = true
		}
	}
	return acc
}

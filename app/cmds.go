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
)

// Command asks the runtime to invoke an effect, optionally with a
// named encoder.
type Command struct {
	Effect  string `json:"effect"`
	Encoder string `json:"encoder,omitempty"`
}

func (c *Command) String() string {
	if c.Encoder == "" {
		return c.Effect
	}
	return c.Effect + "/" + c.Encoder
}

// Commands normalizes an evaluated cmds value into an ordered list.
//
// The value can be a map from effect names to encoder names (where
// an empty value means no encoder), or a list whose elements are
// effect names, single-entry maps, or command records like those
// made by the "effect" form.  Map entries are ordered by effect
// name.
//
// A bad entry is skipped, and the problem is returned along with the
// good commands.
func Commands(v interface{}) ([]*Command, []error) {
	var (
		cmds     []*Command
		problems []error
	)
	add := func(effect string, enc interface{}) {
		cmd, err := command(effect, enc)
		if err != nil {
			problems = append(problems, err)
			return
		}
		cmds = append(cmds, cmd)
	}

	switch vv := v.(type) {
	case nil:
	case map[string]interface{}:
		for _, effect := range core.Keys(vv) {
			add(effect, vv[effect])
		}
	case []interface{}:
		for _, x := range vv {
			switch xx := x.(type) {
			case string:
				add(xx, nil)
			case map[string]interface{}:
				if effect, have := xx["effect"]; have {
					name, _ := effect.(string)
					add(name, xx["encoder"])
					continue
				}
				if len(xx) != 1 {
					problems = append(problems, fmt.Errorf("command %s should have exactly one effect", core.Text(xx)))
					continue
				}
				for effect, enc := range xx {
					add(effect, enc)
				}
			default:
				problems = append(problems, fmt.Errorf("bad command %s", core.Text(x)))
			}
		}
	default:
		problems = append(problems, fmt.Errorf("cmds should be a map or a list, not a %s", core.TypeOf(v)))
	}
	return cmds, problems
}

func command(effect string, enc interface{}) (*Command, error) {
	if effect == "" {
		return nil, fmt.Errorf("command without an effect")
	}
	cmd := &Command{
		Effect: effect,
	}
	if core.IsEmpty(enc) {
		return cmd, nil
	}
	name, is := enc.(string)
	if !is {
		return nil, fmt.Errorf("encoder for %s should be a name, not a %s", effect, core.TypeOf(enc))
	}
	cmd.Encoder = name
	return cmd, nil
}

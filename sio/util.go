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

package sio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
)

// ShortLimit is the number of bytes of JSON that JShort keeps.
var ShortLimit = 70

func render(x interface{}, indent string) string {
	if x == nil {
		return "null"
	}
	var (
		js  []byte
		err error
	)
	if indent == "" {
		js, err = json.Marshal(&x)
	} else {
		js, err = json.MarshalIndent(&x, "", indent)
	}
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}

// JS renders a Result's parts as compact JSON, falling back to '%#v'.
func JS(x interface{}) string {
	return render(x, "")
}

// JSON is JS with indentation.
func JSON(x interface{}) string {
	return render(x, "  ")
}

// JShort is JS for log lines: at most ShortLimit bytes plus "...".
func JShort(x interface{}) string {
	js := JS(x)
	if len(js) <= ShortLimit {
		return js
	}
	return js[:ShortLimit] + "..."
}

var shellCommand = regexp.MustCompile(`<<(.*?)>>`)

// ShellExpand replaces each <<COMMAND>> in an input line with the
// command's stdout.  For example, '{"effect":"ui","at":"<<date>>"}'.
//
// Use at your own risk, of course!
func ShellExpand(ctx context.Context, line string) (string, error) {
	var problem error
	expanded := shellCommand.ReplaceAllStringFunc(line, func(m string) string {
		if problem != nil {
			return ""
		}
		sh := shellCommand.FindStringSubmatch(m)[1]
		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, "bash", "-c", sh)
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			problem = fmt.Errorf("shell error %s on %s", err, sh)
			return ""
		}
		return out.String()
	})
	if problem != nil {
		return "", problem
	}
	return expanded, nil
}

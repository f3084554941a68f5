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
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"regexp"
)

var inlines = regexp.MustCompile(`(?s)(.*?)(%inline *\("([^"]*)"\))`)

// Inline replaces each '%inline("NAME")' with f(NAME) as a quoted
// string, which is a valid YAML (and JSON) scalar.  An app can use
// this to keep a script in its own file.
func Inline(bs []byte, f func(string) ([]byte, error)) ([]byte, error) {
	i := 0
	acc := make([]byte, 0, len(bs))
	for {
		part := inlines.FindSubmatch(bs[i:])
		if part == nil {
			acc = append(acc, bs[i:]...)
			break
		}
		i += len(part[0])
		acc = append(acc, part[1]...)
		replacement, err := f(string(part[3]))
		if err != nil {
			return nil, err
		}
		js, err := json.Marshal(string(replacement))
		if err != nil {
			return nil, err
		}
		acc = append(acc, js...)
	}

	return acc, nil
}

// ReadFileWithInlines is ioutil.ReadFile plus Inline, which reads
// names relative to the file's directory.
func ReadFileWithInlines(filename string) ([]byte, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(filename)
	return Inline(bs, func(name string) ([]byte, error) {
		return ioutil.ReadFile(filepath.Join(dir, name))
	})
}

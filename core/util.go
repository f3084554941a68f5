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
	"math"
	"reflect"
	"strconv"
	"time"
)

// TypeOf names the JSON type of x.
func TypeOf(x interface{}) string {
	switch x.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "text"
	case float64, float32, int, int64, int32:
		return "number"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "object"
	default:
		return reflect.TypeOf(x).String()
	}
}

// Truthy follows JavaScript: nil, false, 0, NaN and "" are false.
// Everything else, including empty lists and maps, is true.
func Truthy(x interface{}) bool {
	switch vv := x.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != ""
	}
	if f, is := Number(x); is {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// IsEmpty reports whether x is nil or a zero-length string, list or
// map.
func IsEmpty(x interface{}) bool {
	switch vv := x.(type) {
	case nil:
		return true
	case string:
		return len(vv) == 0
	case []interface{}:
		return len(vv) == 0
	case map[string]interface{}:
		return len(vv) == 0
	}
	return false
}

// Number returns x as a float64 if it's a number.
func Number(x interface{}) (float64, bool) {
	switch vv := x.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case int32:
		return float64(vv), true
	}
	return 0, false
}

// Equal is structural equality with all numbers compared as float64.
func Equal(x, y interface{}) bool {
	if a, is := Number(x); is {
		b, is := Number(y)
		return is && a == b
	}
	switch vv := x.(type) {
	case []interface{}:
		ww, is := y.([]interface{})
		if !is || len(vv) != len(ww) {
			return false
		}
		for i := range vv {
			if !Equal(vv[i], ww[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		ww, is := y.(map[string]interface{})
		if !is || len(vv) != len(ww) {
			return false
		}
		for k, v := range vv {
			w, have := ww[k]
			if !have || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return x == y
}

// Text renders x the way a string concatenation would: numbers
// without trailing zeros, nil as "null", and lists and maps as JSON.
func Text(x interface{}) string {
	switch vv := x.(type) {
	case nil:
		return "null"
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	}
	if f, is := Number(x); is {
		return FormatNumber(f)
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return reflect.ValueOf(x).String()
	}
	return string(js)
}

// FormatNumber writes f with the fewest digits that represent it.
func FormatNumber(f float64) string {
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Copy makes a shallow copy of a map.
func Copy(m map[string]interface{}) map[string]interface{} {
	acc := make(map[string]interface{}, len(m))
	for k, v := range m {
		acc[k] = v
	}
	return acc
}

// Canonicalize pushes x through JSON, which gives the usual
// map[string]interface{}, []interface{} and float64 representations.
func Canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}

// Timestamp returns a string representing the current time in
// RFC3339Nano.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

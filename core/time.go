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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts an ISO 8601 string or a number of milliseconds
// since the epoch.
func ParseTime(x interface{}) (time.Time, error) {
	if ms, is := Number(x); is {
		return time.UnixMilli(int64(ms)), nil
	}
	s, is := x.(string)
	if !is {
		return time.Time{}, fmt.Errorf("can't parse %s as a date", TypeOf(x))
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("can't parse %q as a date", s)
}

// momentTokens are the supported date pattern tokens.  Longer tokens
// come before their prefixes.
var momentTokens = []string{
	"YYYY", "YY",
	"MMMM", "MMM", "MM", "M",
	"dddd", "ddd",
	"Do", "DD", "D",
	"HH", "H", "hh", "h",
	"mm", "m",
	"ss", "s",
	"SSS",
	"A", "a",
	"ZZ", "Z",
}

// FormatMoment formats t with a moment.js-style pattern like
// "DD/MM/YYYY HH:mm".  Text in square brackets is copied literally.
func FormatMoment(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		if pattern[i] == '[' {
			if j := strings.IndexByte(pattern[i:], ']'); 0 < j {
				b.WriteString(pattern[i+1 : i+j])
				i += j + 1
				continue
			}
		}
		tok := ""
		for _, candidate := range momentTokens {
			if strings.HasPrefix(pattern[i:], candidate) {
				tok = candidate
				break
			}
		}
		if tok == "" {
			b.WriteByte(pattern[i])
			i++
			continue
		}
		b.WriteString(momentToken(t, tok))
		i += len(tok)
	}
	return b.String()
}

func momentToken(t time.Time, tok string) string {
	switch tok {
	case "YYYY":
		return strconv.Itoa(t.Year())
	case "YY":
		return t.Format("06")
	case "MMMM":
		return t.Format("January")
	case "MMM":
		return t.Format("Jan")
	case "MM":
		return t.Format("01")
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "dddd":
		return t.Format("Monday")
	case "ddd":
		return t.Format("Mon")
	case "Do":
		return humanize.Ordinal(t.Day())
	case "DD":
		return t.Format("02")
	case "D":
		return strconv.Itoa(t.Day())
	case "HH":
		return t.Format("15")
	case "H":
		return strconv.Itoa(t.Hour())
	case "hh":
		return t.Format("03")
	case "h":
		return t.Format("3")
	case "mm":
		return t.Format("04")
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return t.Format("05")
	case "s":
		return strconv.Itoa(t.Second())
	case "SSS":
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	case "A":
		return t.Format("PM")
	case "a":
		return t.Format("pm")
	case "ZZ":
		return t.Format("-0700")
	case "Z":
		return t.Format("-07:00")
	}
	return tok
}

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

import "strings"

// Form identifies the variant of a map spec.
type Form int

const (
	FormImplicit Form = iota
	FormEmpty
	FormText
	FormChar
	FormKey
	FormObject
	FormSwitch
	FormChoose
	FormFormat
	FormFormatDate
	FormTimestamp
	FormMaybe
	FormMaybeWith
	FormEqual
	FormEither
	FormOneOf
	FormEffect
	FormEncoder
	FormIsSet
	FormNot
	FormAnd
	FormOr
	FormFirst
	FormHead
	FormTail
	FormLast
	FormSplit
	FormJoin
	FormConcat
	FormMerge
	FormPrettify
	FormPercent
	FormDivide
	FormSum
	FormSizeOf
	FormLowercase
	FormUppercase
	FormCapitalize
	FormGreaterThan
	FormLowerThan
	FormRegex
	FormPipeline
	FormMap
	FormFlatMap
	FormFilter
	FormReject
	FormUnique
	FormData
	FormHas
	FormMember
	FormEmptyTest
	FormAdd
	FormRemove
	FormMatch
	FormCombine
	FormIndex
	FormGroup
	FormResolve
	FormLet
	FormTake
	FormUUID
	FormCamel
)

// Recognition says how a rule's key must appear in a map spec.
type Recognition int

const (
	// ByPresence requires the key to exist.
	ByPresence Recognition = iota

	// ByTruthiness requires the key's value to be Truthy.
	ByTruthiness

	// BySigil requires the key's value to be a string starting
	// with "@".
	BySigil
)

// Rule recognizes one Form.
type Rule struct {
	Key  string
	Form Form
	By   Recognition
}

// Recognizes reports whether the rule applies to the given map spec.
func (r Rule) Recognizes(spec map[string]interface{}) bool {
	v, have := spec[r.Key]
	if !have {
		return false
	}
	switch r.By {
	case ByTruthiness:
		return Truthy(v)
	case BySigil:
		s, is := v.(string)
		return is && strings.HasPrefix(s, "@")
	}
	return true
}

// Rules is the ordered list of recognition rules for map specs.
//
// Order matters: the first rule that recognizes a spec wins, and
// some forms use keys that are also auxiliary keys of other forms
// ("in", "with", "otherwise", "format").
var Rules = []Rule{
	{"text", FormText, ByPresence},
	{"char", FormChar, ByPresence},
	{"key", FormKey, BySigil},
	{"object", FormObject, ByTruthiness},
	{"switch", FormSwitch, ByPresence},
	{"choose", FormChoose, ByTruthiness},
	{"format", FormFormat, ByTruthiness},
	{"formatDate", FormFormatDate, ByTruthiness},
	{"format_date", FormFormatDate, ByTruthiness},
	{"timestamp", FormTimestamp, ByTruthiness},
	{"maybe", FormMaybe, ByTruthiness},
	{"maybe_with", FormMaybeWith, ByTruthiness},
	{"equal", FormEqual, ByTruthiness},
	{"either", FormEither, ByTruthiness},
	{"oneOf", FormOneOf, ByTruthiness},
	{"one_of", FormOneOf, ByTruthiness},
	{"effect", FormEffect, ByTruthiness},
	{"encoder", FormEncoder, ByTruthiness},
	{"is_set", FormIsSet, ByTruthiness},
	{"not", FormNot, ByPresence},
	{"and", FormAnd, ByTruthiness},
	{"or", FormOr, ByTruthiness},
	{"first", FormFirst, ByTruthiness},
	{"head", FormHead, ByTruthiness},
	{"tail", FormTail, ByTruthiness},
	{"last", FormLast, ByTruthiness},
	{"split", FormSplit, ByTruthiness},
	{"join", FormJoin, ByTruthiness},
	{"concat", FormConcat, ByTruthiness},
	{"merged_list", FormConcat, ByTruthiness},
	{"merge", FormMerge, ByTruthiness},
	{"prettify", FormPrettify, ByTruthiness},
	{"percent", FormPercent, ByTruthiness},
	{"divide", FormDivide, ByTruthiness},
	{"sum", FormSum, ByTruthiness},
	{"size_of", FormSizeOf, ByTruthiness},
	{"lowercase", FormLowercase, ByTruthiness},
	{"uppercase", FormUppercase, ByTruthiness},
	{"capitalize", FormCapitalize, ByTruthiness},
	{"greaterThan", FormGreaterThan, ByTruthiness},
	{"greater_than", FormGreaterThan, ByTruthiness},
	{"lower_than", FormLowerThan, ByTruthiness},
	{"regex", FormRegex, ByTruthiness},
	{"pipeline", FormPipeline, ByTruthiness},
	{"map", FormMap, ByTruthiness},
	{"flat_map", FormFlatMap, ByTruthiness},
	{"filter", FormFilter, ByTruthiness},
	{"reject", FormReject, ByTruthiness},
	{"unique", FormUnique, ByTruthiness},
	{"data", FormData, ByPresence},
	{"has", FormHas, ByTruthiness},
	{"member", FormMember, ByTruthiness},
	{"empty", FormEmptyTest, ByTruthiness},
	{"add", FormAdd, ByTruthiness},
	{"remove", FormRemove, ByTruthiness},
	{"match", FormMatch, ByTruthiness},
	{"combine", FormCombine, ByTruthiness},
	{"index", FormIndex, ByTruthiness},
	{"group", FormGroup, ByTruthiness},
	{"resolve", FormResolve, ByTruthiness},
	{"let", FormLet, ByTruthiness},
	{"take", FormTake, ByTruthiness},
	{"uuid", FormUUID, ByTruthiness},
	{"camel", FormCamel, ByTruthiness},
}

// Classify returns the Form of a map spec.
//
// An empty map is FormEmpty.  A map that no rule recognizes is
// FormImplicit, which evaluates like FormObject over the map itself.
func Classify(spec map[string]interface{}) Form {
	if len(spec) == 0 {
		return FormEmpty
	}
	for _, r := range Rules {
		if r.Recognizes(spec) {
			return r.Form
		}
	}
	return FormImplicit
}

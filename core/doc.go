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

// Package core provides the expression evaluator for declarative
// Model-Update-Command applications.
//
// An application is described entirely as JSON-like specifications.
// A specification (a "spec") is either a scalar, a list of specs, or
// a map whose first recognized key selects a form.  Evaluating
// ("encoding") a spec against a Context produces a value.  The
// companion package match provides the pattern matcher ("decoding"),
// which checks and destructures data against a spec.
//
// A Context is an immutable, layered environment.  Settings are the
// outermost layer, then the model (and the current event data), then
// any aliases introduced by forms like "map" or "let".  Lookups find
// the innermost binding.
//
// A string spec that starts with "@" is a path lookup: "@model.count"
// finds "model" in the Context and then "count" in that value.  "@"
// alone is the entire Context.
//
// Errors are values of type *Error.  Each carries the failing spec,
// the Context at the failure, and a Reason.  Nothing here panics on
// bad specs.
//
// This package also defines the contract for Effects, which are the
// only way an application touches the world.  See Factory and Send.
package core

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
	"context"
)

// Couplings provide channels for event input, results output, and
// persistence.
//
// For example, an implementation could couple a runtime to a
// WebSocket server (for IO) and a JSON file (for persistence).
type Couplings interface {
	// Start initializes the Couplings.
	Start(context.Context) error

	// IO returns the input and result channels and a channel
	// that's closed at the end of input.
	//
	// The Runtime closes the result channel when its loop exits.
	IO(context.Context) (chan interface{}, chan *Result, chan bool, error)

	// Read (optionally) returns a model to resume.
	Read(context.Context) (map[string]interface{}, error)

	// Stop shuts down the Couplings.
	Stop(context.Context) error
}

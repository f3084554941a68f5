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
	"context"
	"time"

	"go.uber.org/zap"
)

// API is what the runtime gives an Effect when the Effect is made.
type API struct {
	// Encode evaluates a spec.
	Encode func(spec interface{}, ctx *Context) (interface{}, error)

	// Decode matches data against a pattern.
	Decode func(spec, data interface{}, ctx *Context) (interface{}, error)

	// Update enqueues an event for the runtime.  An event must
	// have an "effect" property.
	//
	// This is the only way for data to get back into the
	// application.
	Update func(event map[string]interface{})

	// TC times the given function, which is logged if the app
	// asked for telemetry.
	TC func(what string, f func() error) error

	// AtExit registers a function that the runtime calls after
	// all Sends have returned, for example to close a database.
	AtExit func(f func() error)

	Logger *zap.Logger
}

// Send performs an Effect.
//
// The encoders are the application's registry.  The enc is the
// resolved encoder spec for the command, or nil.  The model is a
// snapshot (with settings merged under it) that the Effect may read
// but must not modify.
//
// The runtime calls each Send on its own goroutine and waits for it
// at shutdown, so a Send may block but must return when ctx is done.
type Send func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{})

// Factory makes an Effect's Send given the Effect's name, its
// settings, and the runtime API.
type Factory func(name string, settings map[string]interface{}, api *API) (Send, error)

// Factories maps effect names to their factories.
type Factories map[string]Factory

// NewTC returns a TC function that logs durations when telemetry is
// on.
func NewTC(logger *zap.Logger, telemetry bool) func(string, func() error) error {
	return func(what string, f func() error) error {
		if !telemetry {
			return f()
		}
		then := time.Now()
		err := f()
		logger.Info("timing", zap.String("what", what), zap.Duration("elapsed", time.Since(then)))
		return err
	}
}

// EncodeWith is a convenience for Effects that evaluates the encoder
// spec against the model snapshot.
//
// A nil spec gives a nil value.
func (api *API) EncodeWith(enc interface{}, model map[string]interface{}) (interface{}, error) {
	if enc == nil {
		return nil, nil
	}
	return api.Encode(enc, NewContext(model))
}

// Time calls api.TC if there is one.
func (api *API) Time(what string, f func() error) error {
	if api.TC == nil {
		return f()
	}
	return api.TC(what, f)
}

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

// Package effects gathers the standard effects.
//
// An app's "effects" section names the effects it uses.  By default,
// a name selects the factory with the same name, but an effect's
// settings can say "use: FACTORY" to run (say) two http effects with
// different settings.
package effects

import (
	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/effects/events"
	"github.com/Comcast/elementary/effects/http"
	"github.com/Comcast/elementary/effects/mqtt"
	"github.com/Comcast/elementary/effects/router"
	"github.com/Comcast/elementary/effects/script"
	"github.com/Comcast/elementary/effects/storage"
)

// Standard returns the standard factories.
func Standard() core.Factories {
	return core.Factories{
		"http":    http.Factory,
		"storage": storage.Factory,
		"router":  router.Factory,
		"events":  events.Factory,
		"mqtt":    mqtt.Factory,
		"script":  script.Factory,
	}
}

// For returns factories for the app's effects, resolving any "use"
// settings against the given factories.
func For(a *app.App, fs core.Factories) core.Factories {
	acc := make(core.Factories, len(a.Effects))
	for name, conf := range a.Effects {
		use := name
		if conf != nil {
			if s, is := conf.Settings["use"].(string); is && s != "" {
				use = s
			}
		}
		if f, have := fs[use]; have {
			acc[name] = f
		}
	}
	return acc
}

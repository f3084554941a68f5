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

package router

import (
	"context"
	"testing"

	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouter(t *testing.T) {
	var (
		ev     = match.NewEvaluator(nil)
		events = make(chan map[string]interface{}, 1)
		api    = &core.API{
			Encode: ev.Encode,
			Update: func(e map[string]interface{}) {
				events <- e
			},
			Logger: zap.NewNop(),
		}
		ctx = context.Background()
	)

	send, err := Factory("router", map[string]interface{}{"route": "home?tab=news"}, api)
	require.NoError(t, err)

	send(ctx, nil, nil, nil)
	assert.Equal(t, map[string]interface{}{
		"effect": "router",
		"route":  "/home",
		"query":  map[string]interface{}{"tab": "news"},
		"uri":    "/home?tab=news",
	}, <-events)

	enc := map[string]interface{}{
		"action": "navigate",
		"target": map[string]interface{}{
			"route": "@page",
			"query": map[string]interface{}{"id": "@id", "q": ""},
		},
	}
	send(ctx, nil, enc, map[string]interface{}{"page": "talks", "id": 42.0})
	got := <-events
	assert.Equal(t, "/talks", got["route"])
	assert.Equal(t, "/talks?id=42", got["uri"])

	// Unknown actions are ignored.
	send(ctx, nil, map[string]interface{}{"action": "fly"}, nil)
	assert.Len(t, events, 0)
}

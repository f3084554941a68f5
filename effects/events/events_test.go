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

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAPI(events chan map[string]interface{}) *core.API {
	ev := match.NewEvaluator(nil)
	return &core.API{
		Encode: ev.Encode,
		Update: func(e map[string]interface{}) {
			events <- e
		},
		Logger: zap.NewNop(),
	}
}

func TestDelay(t *testing.T) {
	events := make(chan map[string]interface{}, 1)
	send, err := Factory("later", nil, newAPI(events))
	require.NoError(t, err)

	then := time.Now()
	send(context.Background(), nil, map[string]interface{}{"delay": 20.0, "n": "@n"}, map[string]interface{}{"n": 3.0})
	assert.True(t, 20*time.Millisecond <= time.Since(then))
	assert.Equal(t, map[string]interface{}{"effect": "later", "delay": 20.0, "n": 3.0}, <-events)
}

func TestDelayCanceled(t *testing.T) {
	events := make(chan map[string]interface{}, 1)
	send, err := Factory("later", nil, newAPI(events))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	send(ctx, nil, map[string]interface{}{"delay": 10000.0}, nil)
	assert.Len(t, events, 0)
}

func TestCron(t *testing.T) {
	events := make(chan map[string]interface{}, 2)
	send, err := Factory("tick", nil, newAPI(events))
	require.NoError(t, err)

	// Every second, twice.
	send(context.Background(), nil, map[string]interface{}{"cron": "* * * * * * *", "limit": 2.0}, nil)
	require.Len(t, events, 2)
	ev := <-events
	assert.Equal(t, "tick", ev["effect"])
	_, err = time.Parse(time.RFC3339, ev["at"].(string))
	require.NoError(t, err)
}

func TestCronBad(t *testing.T) {
	events := make(chan map[string]interface{}, 1)
	send, err := Factory("tick", nil, newAPI(events))
	require.NoError(t, err)
	send(context.Background(), nil, map[string]interface{}{"cron": "never ever"}, nil)
	assert.Len(t, events, 0)
}

func TestSharedEncoder(t *testing.T) {
	var (
		mu     sync.Mutex
		events []map[string]interface{}
	)
	api := newAPI(nil)
	api.Update = func(e map[string]interface{}) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	send, err := Factory("again", nil, api)
	require.NoError(t, err)

	data := map[string]interface{}{"kind": "tick"}
	encoders := map[string]interface{}{
		"tick": map[string]interface{}{"data": data},
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send(context.Background(), encoders, encoders["tick"], nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]interface{}{"kind": "tick"}, data)
	require.Len(t, events, 50)
	for _, ev := range events {
		assert.Equal(t, map[string]interface{}{"kind": "tick", "effect": "again"}, ev)
	}
}

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

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Comcast/elementary/core"
	"github.com/Comcast/elementary/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStorageBasics(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "storage.db")

	s := NewStorage(filename, "cm:")
	require.NoError(t, s.Open())

	other := &Storage{Namespace: "xx:", Logger: zap.NewNop(), db: s.db}

	require.NoError(t, s.Write(map[string]interface{}{"a": 1.0, "b": "two"}, nil))
	require.NoError(t, other.Write(map[string]interface{}{"a": "other"}, nil))

	got, err := s.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1.0, "b": "two"}, got)

	require.NoError(t, s.Write(nil, []string{"a"}))
	got, err = s.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"b": "two"}, got)

	got, err = other.Entries()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": "other"}, got)

	require.NoError(t, s.Close())
}

func TestStorageEffect(t *testing.T) {
	var (
		ev     = match.NewEvaluator(nil)
		events = make(chan map[string]interface{}, 2)
		exits  []func() error
		api    = &core.API{
			Encode: ev.Encode,
			Decode: ev.Decode,
			Update: func(e map[string]interface{}) {
				events <- e
			},
			AtExit: func(f func() error) {
				exits = append(exits, f)
			},
			Logger: zap.NewNop(),
		}
		settings = map[string]interface{}{
			"filename": filepath.Join(t.TempDir(), "effect.db"),
		}
		ctx   = context.Background()
		model = map[string]interface{}{"user": "homer"}
	)

	send, err := Factory("storage", settings, api)
	require.NoError(t, err)
	require.Len(t, exits, 1)

	send(ctx, nil, map[string]interface{}{"write": map[string]interface{}{"user": "@user", "n": 1.0}}, model)
	send(ctx, nil, map[string]interface{}{"tmp": true}, model)
	send(ctx, nil, map[string]interface{}{"delete": []interface{}{"n"}}, model)
	send(ctx, nil, nil, model)

	require.Len(t, events, 1)
	assert.Equal(t, map[string]interface{}{
		"effect": "storage",
		"entries": map[string]interface{}{
			"user": "homer",
			"tmp":  true,
		},
	}, <-events)

	require.NoError(t, exits[0]())
}

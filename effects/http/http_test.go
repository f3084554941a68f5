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

package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
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
		Decode: ev.Decode,
		Update: func(e map[string]interface{}) {
			events <- e
		},
		Logger: zap.NewNop(),
	}
}

func testServer() *httptest.Server {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/things", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, err := r.Cookie("visited")
		w.Header().Set("Content-Type", JSONMIME)
		nethttp.SetCookie(w, &nethttp.Cookie{Name: "visited", Value: "yes", Path: "/"})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"n":       r.URL.Query().Get("n"),
			"key":     r.Header.Get("X-Key"),
			"visited": err == nil,
		})
	})
	mux.HandleFunc("/form", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := r.ParseMultipartForm(1 << 16); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		w.Write([]byte(r.Method + " " + r.FormValue("name")))
	})
	mux.HandleFunc("/slow", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	return httptest.NewServer(mux)
}

func TestHTTPGet(t *testing.T) {
	srv := testServer()
	defer srv.Close()

	events := make(chan map[string]interface{}, 2)
	settings := map[string]interface{}{
		"url":     srv.URL,
		"headers": map[string]interface{}{"X-Key": "secret"},
	}
	send, err := Factory("http", settings, newAPI(events))
	require.NoError(t, err)

	enc := map[string]interface{}{
		"path":  "/things",
		"query": map[string]interface{}{"n": "@n"},
		"tag":   "first",
	}
	model := map[string]interface{}{"n": 7.0}

	send(context.Background(), nil, enc, model)
	ev := <-events
	assert.Equal(t, "http", ev["effect"])
	assert.Equal(t, 200.0, ev["status"])
	assert.Equal(t, "first", ev["tag"])
	assert.Equal(t, map[string]interface{}{"n": "7", "key": "secret", "visited": false}, ev["body"])
	assert.Equal(t, JSONMIME, ev["headers"].(map[string]interface{})["content-type"])

	// The cookie jar remembers.
	enc["as"] = "reply"
	send(context.Background(), nil, enc, model)
	ev = <-events
	reply, is := ev["reply"].(map[string]interface{})
	require.True(t, is)
	assert.Equal(t, true, reply["body"].(map[string]interface{})["visited"])
}

func TestHTTPForm(t *testing.T) {
	srv := testServer()
	defer srv.Close()

	events := make(chan map[string]interface{}, 1)
	send, err := Factory("http", nil, newAPI(events))
	require.NoError(t, err)

	send(context.Background(), nil, map[string]interface{}{
		"method":  "post",
		"url":     srv.URL + "/form",
		"headers": map[string]interface{}{"content-type": "multipart/form-data"},
		"body":    map[string]interface{}{"name": "homer"},
	}, nil)
	ev := <-events
	assert.Equal(t, "POST homer", ev["body"])
	tag, is := ev["tag"].(string)
	require.True(t, is)
	assert.Len(t, tag, 36)
}

func TestHTTPFailures(t *testing.T) {
	srv := testServer()
	defer srv.Close()

	events := make(chan map[string]interface{}, 1)
	send, err := Factory("http", map[string]interface{}{"timeout": 50.0, "url": srv.URL}, newAPI(events))
	require.NoError(t, err)

	send(context.Background(), nil, map[string]interface{}{"path": "/slow", "tag": 1.0}, nil)
	assert.Equal(t, map[string]interface{}{"effect": "http", "error": "timeout", "tag": 1.0}, <-events)

	dead := httptest.NewServer(nethttp.NotFoundHandler())
	dead.Close()
	send(context.Background(), nil, map[string]interface{}{"url": dead.URL, "as": "got", "tag": 2.0}, nil)
	assert.Equal(t, map[string]interface{}{"effect": "http", "got": "error", "tag": 2.0}, <-events)
}

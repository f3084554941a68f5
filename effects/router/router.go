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

// Package router is an effect that keeps a current route.
//
// A command without an encoder reports the current route as
// {effect, route, query}.  An encoder that gives
// {action: "navigate", target: {route, query}} changes the route and
// reports the new one along with its "uri".
package router

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/Comcast/elementary/core"

	"go.uber.org/zap"
)

// Router is the current route.
type Router struct {
	sync.Mutex

	Route string
	Query map[string]interface{}
}

// URI renders the route and its non-empty query parameters.
func (r *Router) URI() string {
	u := &url.URL{Path: r.Route}
	ks := make([]string, 0, len(r.Query))
	for k, v := range r.Query {
		if core.Text(v) != "" && v != nil {
			ks = append(ks, k)
		}
	}
	sort.Strings(ks)
	if 0 < len(ks) {
		q := url.Values{}
		for _, k := range ks {
			q.Set(k, core.Text(r.Query[k]))
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Parse sets the route from a URI.
func (r *Router) Parse(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return err
	}
	r.Route = u.Path
	if !strings.HasPrefix(r.Route, "/") {
		r.Route = "/" + r.Route
	}
	r.Query = make(map[string]interface{})
	for k, vs := range u.Query() {
		r.Query[k] = vs[0]
	}
	return nil
}

func (r *Router) event(name string) map[string]interface{} {
	return map[string]interface{}{
		"effect": name,
		"route":  r.Route,
		"query":  core.Copy(r.Query),
		"uri":    r.URI(),
	}
}

// Factory makes the router effect.
//
// Setting "route" gives the starting URI (default "/").
func Factory(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
	r := &Router{}
	start, _ := settings["route"].(string)
	if err := r.Parse(start); err != nil {
		return nil, err
	}

	return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
		if enc == nil {
			r.Lock()
			ev := r.event(name)
			r.Unlock()
			api.Update(ev)
			return
		}

		v, err := api.EncodeWith(enc, model)
		if err != nil {
			api.Logger.Error("encode", zap.Error(err))
			return
		}
		m, _ := v.(map[string]interface{})
		switch action := core.Text(m["action"]); action {
		case "navigate":
			target, _ := m["target"].(map[string]interface{})
			query, _ := target["query"].(map[string]interface{})
			r.Lock()
			r.Route = "/" + strings.TrimPrefix(core.Text(target["route"]), "/")
			r.Query = query
			ev := r.event(name)
			r.Unlock()
			api.Update(ev)
		default:
			api.Logger.Warn("router action not implemented", zap.String("action", action))
		}
	}, nil
}

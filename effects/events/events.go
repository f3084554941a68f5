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

// Package events is an effect that sends the encoder's output back
// to the app as an event, later.
//
// The output is an object.  A "delay" (milliseconds) postpones the
// event.  A "cron" expression sends the event on that schedule, with
// an "at" property, until the runtime stops or "limit" events have
// been sent.
package events

import (
	"context"
	"time"

	"github.com/Comcast/elementary/core"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

// Factory makes the events effect.
func Factory(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
	return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
		v, err := api.EncodeWith(enc, model)
		if err != nil {
			api.Logger.Error("encode", zap.Error(err))
			return
		}
		ev, is := v.(map[string]interface{})
		if !is {
			api.Logger.Error("events wants an object", zap.String("got", core.TypeOf(v)))
			return
		}
		// The encoded value can share structure with the registry or
		// the model.
		ev = core.Copy(ev)
		ev["effect"] = name

		if expr, is := ev["cron"].(string); is {
			schedule, err := cronexpr.Parse(expr)
			if err != nil {
				api.Logger.Error("cron", zap.String("cron", expr), zap.Error(err))
				return
			}
			limit, _ := core.Number(ev["limit"])
			repeat(ctx, schedule, int(limit), func(at time.Time) {
				e := core.Copy(ev)
				e["at"] = at.UTC().Format(time.RFC3339)
				api.Update(e)
			})
			return
		}

		var delay time.Duration
		if ms, is := core.Number(ev["delay"]); is && 0 < ms {
			delay = time.Duration(ms) * time.Millisecond
		}
		if wait(ctx, delay) {
			api.Update(ev)
		}
	}, nil
}

// wait returns false if ctx is done first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// repeat calls f at each scheduled time.  A limit less than one means
// no limit.
func repeat(ctx context.Context, schedule *cronexpr.Expression, limit int, f func(time.Time)) {
	for n := 0; limit < 1 || n < limit; n++ {
		next := schedule.Next(time.Now())
		if next.IsZero() {
			return
		}
		if !wait(ctx, time.Until(next)) {
			return
		}
		f(next)
	}
}

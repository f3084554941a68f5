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
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/core"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var countApp = `
name: count
init:
  model:
    count: 0
decoders:
  ui:
    inc:
      action: inc
    dec:
      action: dec
    boom:
      action: boom
update:
  inc:
    model:
      count: {sum: ["@model.count", 1]}
  dec:
    model:
      count: {sum: ["@model.count", -1]}
  boom:
    model:
      count: 100
    cmds: {divide: [1, 0]}
views:
  main:
    total: "@count"
`

func readApp(t *testing.T, src string) *app.App {
	t.Helper()
	a, err := app.Read([]byte(src))
	require.NoError(t, err)
	require.NoError(t, a.Compile())
	return a
}

// chanCouplings is a Couplings for tests.
type chanCouplings struct {
	in    chan interface{}
	out   chan *Result
	done  chan bool
	model map[string]interface{}
}

func newChanCouplings() *chanCouplings {
	return &chanCouplings{
		in:   make(chan interface{}),
		out:  make(chan *Result),
		done: make(chan bool),
	}
}

func (c *chanCouplings) Start(ctx context.Context) error {
	return nil
}

func (c *chanCouplings) IO(ctx context.Context) (chan interface{}, chan *Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

func (c *chanCouplings) Read(ctx context.Context) (map[string]interface{}, error) {
	return c.model, nil
}

func (c *chanCouplings) Stop(ctx context.Context) error {
	return nil
}

func (c *chanCouplings) next(t *testing.T) *Result {
	t.Helper()
	select {
	case r := <-c.out:
		require.NotNil(t, r, "output closed")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	return nil
}

// running starts the loop and returns a function that stops it.
func running(t *testing.T, r *Runtime) func() {
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- r.Loop(ctx)
	}()
	return func() {
		cancel()
		require.NoError(t, <-errs)
	}
}

func TestRuntimeCount(t *testing.T) {
	s := NewStdio(false)
	s.In = strings.NewReader(`{"effect":"ui","action":"inc"}
# Comments are ignored.
{"effect":"ui","action":"inc"}
{"effect":"ui","action":"dec"}
{"view":"main"}
`)
	var out bytes.Buffer
	s.Out = &out
	s.Tags = true

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	r, err := NewRuntime(ctx, &RuntimeConf{HaltOnInputEOF: true}, readApp(t, countApp), nil, s)
	require.NoError(t, err)
	require.NoError(t, r.Loop(ctx))
	require.NoError(t, s.Stop(ctx))

	assert.Equal(t, map[string]interface{}{"count": float64(1)}, r.Model())

	want := `model {"count":0}
model {"count":1}
model {"count":2}
model {"count":1}
view {"total":1}
`
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Fatal(diff)
	}
}

func TestRuntimeAtomicUpdate(t *testing.T) {
	c := newChanCouplings()
	r, err := NewRuntime(context.Background(), nil, readApp(t, countApp), nil, c)
	require.NoError(t, err)
	defer running(t, r)()

	assert.Equal(t, float64(0), c.next(t).Model["count"])

	// The model section works but the cmds fail, so nothing
	// should be committed.
	c.in <- map[string]interface{}{"effect": "ui", "action": "boom"}
	res := c.next(t)
	assert.Nil(t, res.Model)
	assert.Contains(t, res.Error, string(core.DivisionByZero))

	c.in <- map[string]interface{}{"effect": "ui", "action": "inc"}
	assert.Equal(t, float64(1), c.next(t).Model["count"])
}

func TestRuntimeBadEvents(t *testing.T) {
	c := newChanCouplings()
	r, err := NewRuntime(context.Background(), nil, readApp(t, countApp), nil, c)
	require.NoError(t, err)
	defer running(t, r)()
	c.next(t)

	for _, tc := range []struct {
		ev     interface{}
		reason core.Reason
	}{
		{"inc", ""},
		{map[string]interface{}{"action": "inc"}, core.MissingEffect},
		{map[string]interface{}{"effect": "mouse"}, core.NoDecoders},
		{map[string]interface{}{"effect": "ui", "action": "jump"}, core.AllDecodersFailed},
		{map[string]interface{}{"view": "side"}, core.NoSuchView},
	} {
		c.in <- tc.ev
		res := c.next(t)
		require.NotEmpty(t, res.Error)
		assert.Contains(t, res.Error, string(tc.reason))
	}

	c.in <- map[string]interface{}{"view": "main"}
	assert.Equal(t, map[string]interface{}{"total": float64(0)}, c.next(t).View)
}

var sourceApp = `
init:
  model:
    count: 1
  cmds:
    source: ping
encoders:
  ping:
    value: {sum: ["@count", "@bonus"]}
decoders:
  source:
    got:
      value: {any: number}
update:
  got:
    model:
      latest: "@data.value"
    cmds:
      - nowhere
      - crash
settings:
  bonus: 41
effects:
  source:
    settings:
      tag: sourcing
  crash: {}
`

func sourceFactories(sent *int32) core.Factories {
	return core.Factories{
		"source": func(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
			if settings["tag"] != "sourcing" || settings["bonus"] != float64(41) {
				return nil, assert.AnError
			}
			return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
				atomic.AddInt32(sent, 1)
				v, err := api.EncodeWith(enc, model)
				if err != nil {
					api.Logger.Error("encode", zap.Error(err))
					return
				}
				ev := core.Copy(v.(map[string]interface{}))
				ev["effect"] = name
				api.Update(ev)
			}, nil
		},
		"crash": func(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
			return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
				panic("crash")
			}, nil
		},
	}
}

func TestRuntimeDispatch(t *testing.T) {
	var sent int32
	c := newChanCouplings()
	r, err := NewRuntime(context.Background(), nil, readApp(t, sourceApp), sourceFactories(&sent), c)
	require.NoError(t, err)
	defer running(t, r)()

	first := c.next(t)
	require.Len(t, first.Cmds, 1)
	assert.Equal(t, "source/ping", first.Cmds[0].String())

	// The source's event comes back through the queue.  Its
	// commands name one unknown effect and one that panics.  The
	// unknown one is reported before the commit's Result.
	var (
		errs []string
		got  *Result
	)
	for got == nil {
		res := c.next(t)
		if res.Error != "" {
			if !strings.Contains(res.Error, string(core.NoSuchEffect)) {
				t.Fatalf("unexpected error: %s", res.Error)
			}
			errs = append(errs, res.Error)
			continue
		}
		got = res
	}
	assert.Equal(t, "got", got.Message)
	assert.Equal(t, float64(42), got.Model["latest"])
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], string(core.NoSuchEffect))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sent))

	// The loop survived the panic.
	c.in <- map[string]interface{}{"view": "nope"}
	assert.NotEmpty(t, c.next(t).Error)
}

func TestRuntimeMissingFactory(t *testing.T) {
	_, err := NewRuntime(context.Background(), nil, readApp(t, sourceApp), core.Factories{}, newChanCouplings())
	require.Error(t, err)
	assert.True(t, core.Is(err, core.NoSuchEffect))
}

func TestRuntimeResume(t *testing.T) {
	c := newChanCouplings()
	c.model = map[string]interface{}{"count": float64(5)}
	r, err := NewRuntime(context.Background(), nil, readApp(t, countApp), nil, c)
	require.NoError(t, err)
	defer running(t, r)()

	c.in <- map[string]interface{}{"effect": "ui", "action": "inc"}
	res := c.next(t)
	assert.Equal(t, "inc", res.Message)
	assert.Equal(t, float64(6), res.Model["count"])
}

func TestRuntimeUpdateAfterHalt(t *testing.T) {
	c := newChanCouplings()
	r, err := NewRuntime(context.Background(), nil, readApp(t, countApp), nil, c)
	require.NoError(t, err)
	stop := running(t, r)
	c.next(t)
	stop()

	for i := 0; i < DefaultQueueSize+1; i++ {
		r.Update(map[string]interface{}{"effect": "ui", "action": "inc"})
	}
}

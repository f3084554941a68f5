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
	"fmt"
	"sync"

	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/core"

	"go.uber.org/zap"
)

// DefaultQueueSize is the default depth of a Runtime's event queue.
var DefaultQueueSize = 64

// Result represents all visible output from processing an event.
type Result struct {
	Event   map[string]interface{} `json:"event,omitempty"`
	Message string                 `json:"message,omitempty"`

	// Model is the committed model.  Nil if the event didn't
	// result in a commit.
	Model map[string]interface{} `json:"model,omitempty"`

	// Changed reports whether the update had a model section.
	Changed bool `json:"changed,omitempty"`

	Cmds []*app.Command `json:"cmds,omitempty"`

	// View is the output of a view request.
	View interface{} `json:"view,omitempty"`

	Error string `json:"error,omitempty"`
}

// RuntimeConf provides some basic Runtime parameters.
type RuntimeConf struct {
	// QueueSize is the depth of the event queue that effects
	// write to.
	QueueSize int `json:"queueSize,omitempty"`

	// HaltOnInputEOF stops the loop when the couplings report
	// the end of their input.
	HaltOnInputEOF bool `json:"haltOnInputEOF,omitempty"`

	Verbose bool `json:"verbose,omitempty"`

	Logger *zap.Logger `json:"-"`
}

// Runtime owns an App's model.  It's the only consumer of its
// events: couplings and effects produce them.
type Runtime struct {
	App *app.App

	Conf *RuntimeConf

	// Verbose turns on Logf output.  An app's debug setting
	// turns it on, too.
	Verbose bool

	Logger *zap.Logger

	effects map[string]core.Send

	// model is the committed model.  Only the loop touches it.
	model map[string]interface{}

	// restored is true when the couplings gave us a model.
	restored bool

	// queue receives events from effects.
	queue chan map[string]interface{}

	// in receives events from the couplings.
	in chan interface{}

	// out receives all results.
	out chan *Result

	// done is closed by Couplings when its input is closed.
	done chan bool

	// halt is closed when the loop exits.
	halt chan struct{}

	// stopping is the loop's ctx.Done().
	stopping <-chan struct{}

	// wg tracks effect goroutines.
	wg sync.WaitGroup

	// exits are the effects' AtExit functions.
	exits []func() error
}

// NewRuntime makes a Runtime for the app with the given
// configuration and couplings.
//
// The app is compiled if necessary.  Each effect named in the app's
// effects section is made with the corresponding factory and the
// effect's settings (overlaid on the app's settings).  The
// couplings' IO() method provides the runtime's in/out channels, and
// Read() can provide a model to resume.
func NewRuntime(ctx context.Context, conf *RuntimeConf, a *app.App, factories core.Factories, couplings Couplings) (*Runtime, error) {
	if conf == nil {
		conf = &RuntimeConf{}
	}
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := conf.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	if !a.Compiled() {
		if err := a.Compile(); err != nil {
			return nil, err
		}
	}
	if a.TC == nil {
		a.TC = core.NewTC(logger, a.Setting("telemetry"))
	}

	in, out, done, err := couplings.IO(ctx)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		App:     a,
		Conf:    conf,
		Verbose: conf.Verbose || a.Setting("debug"),
		Logger:  logger,
		effects: make(map[string]core.Send, len(a.Effects)),
		queue:   make(chan map[string]interface{}, size),
		in:      in,
		out:     out,
		done:    done,
		halt:    make(chan struct{}),
	}

	model, err := couplings.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(model) > 0 {
		r.model = model
		r.restored = true
	}

	ev := a.Evaluator()
	for name := range a.Effects {
		factory, have := factories[name]
		if !have {
			return nil, core.NewError(name, nil, core.NoSuchEffect, "no factory for "+name)
		}
		api := &core.API{
			Encode: ev.Encode,
			Decode: ev.Decode,
			Update: r.Update,
			TC:     a.TC,
			AtExit: func(f func() error) {
				r.exits = append(r.exits, f)
			},
			Logger: logger.With(zap.String("effect", name)),
		}
		send, err := factory(name, a.EffectSettings(name), api)
		if err != nil {
			return nil, fmt.Errorf("effect %s: %w", name, err)
		}
		r.effects[name] = send
	}

	return r, nil
}

// Logf logs if r.Verbose.
func (r *Runtime) Logf(format string, args ...interface{}) {
	if !r.Verbose {
		return
	}
	r.Logger.Sugar().Infof(format, args...)
}

// Errorf logs an error and emits a Result that carries the message.
func (r *Runtime) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Logger.Error(msg)
	r.emit(&Result{
		Error: msg,
	})
}

func (r *Runtime) emit(res *Result) {
	select {
	case <-r.stopping:
	case r.out <- res:
	}
}

// Update enqueues an event.
//
// Update never runs an update cycle itself.  The loop takes the
// event in its turn.  After the loop has exited, events are dropped.
func (r *Runtime) Update(ev map[string]interface{}) {
	select {
	case r.queue <- ev:
	case <-r.halt:
		r.Logger.Warn("dropping event after halt", zap.Any("event", ev))
	}
}

// Model returns the committed model.
//
// Only call Model when the loop isn't running.
func (r *Runtime) Model() map[string]interface{} {
	return r.model
}

// Loop runs the app in the current goroutine.
//
// The loop first commits the app's initial model (unless the
// couplings provided one) and dispatches the init commands.  Then it
// processes each event that arrives from the couplings or from
// effects.  The loop halts when ctx is done, when the couplings'
// input channel is closed, or at input EOF if Conf.HaltOnInputEOF.
// Before returning, Loop cancels the effects, waits for them, runs
// their AtExit functions, and closes the output channel.
func (r *Runtime) Loop(ctx context.Context) error {
	r.Logf("Runtime.Loop starting")

	ctx, cancel := context.WithCancel(ctx)
	r.stopping = ctx.Done()

	defer func() {
		close(r.halt)
		cancel()
		r.wg.Wait()
		for _, f := range r.exits {
			if err := f(); err != nil {
				r.Logger.Warn("effect exit", zap.Error(err))
			}
		}
		close(r.out)
		r.Logf("Runtime.Loop done")
	}()

	if err := r.start(ctx); err != nil {
		return err
	}

LOOP:
	for {
		select {
		case <-r.done:
			if r.Conf.HaltOnInputEOF {
				r.Logf("Runtime.Loop shutting down (input done)")
				break LOOP
			}
			r.done = nil
		case <-ctx.Done():
			r.Logf("Runtime.Loop shutting down (ctx.Done)")
			break LOOP
		case x, ok := <-r.in:
			if !ok {
				break LOOP
			}
			r.process(ctx, x)
		case ev := <-r.queue:
			r.process(ctx, ev)
		}
	}

	return nil
}

// start commits the initial model.
func (r *Runtime) start(ctx context.Context) error {
	if r.restored {
		r.Logf("Runtime resuming with %s", JShort(r.model))
		return nil
	}
	s, err := r.App.Start()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	r.commit(ctx, nil, s)
	return nil
}

// process runs one update cycle or answers a view request.
//
// Any error drops the event.  The model stays as it was.
func (r *Runtime) process(ctx context.Context, x interface{}) {
	r.Logf("process %s", JShort(x))

	ev, is := x.(map[string]interface{})
	if !is {
		r.Errorf("event %s is %s, not an object", JShort(x), core.TypeOf(x))
		return
	}

	if name, have := ev["view"]; have && ev["effect"] == nil {
		v, err := r.App.View(core.Text(name), r.model)
		if err != nil {
			r.Errorf("view %s: %s", core.Text(name), err)
			return
		}
		r.emit(&Result{
			Event: ev,
			View:  v,
		})
		return
	}

	s, err := r.App.Step(r.model, ev)
	if err != nil {
		r.Errorf("event %s: %s", JShort(ev), err)
		return
	}
	r.commit(ctx, ev, s)
}

// commit makes the Stride's model current, dispatches its commands,
// and emits the Result.
func (r *Runtime) commit(ctx context.Context, ev map[string]interface{}, s *app.Stride) {
	r.model = s.Model
	for _, problem := range s.Problems {
		r.Logger.Warn("skipped command", zap.String("problem", problem))
	}
	r.dispatch(ctx, s.Cmds)
	r.emit(&Result{
		Event:   ev,
		Message: s.Message,
		Model:   r.model,
		Changed: s.Changed,
		Cmds:    s.Cmds,
	})
}

// dispatch starts each command's effect on its own goroutine.
//
// A command with an unknown effect or encoder is reported and
// skipped.  Every effect sees the same snapshot.
func (r *Runtime) dispatch(ctx context.Context, cmds []*app.Command) {
	if len(cmds) == 0 {
		return
	}
	snapshot := r.App.Snapshot(r.model)
	for _, cmd := range cmds {
		send, have := r.effects[cmd.Effect]
		if !have {
			r.Errorf("command %s: %s", cmd, core.NewError(cmd.Effect, nil, core.NoSuchEffect, cmd.Effect))
			continue
		}
		var enc interface{}
		if cmd.Encoder != "" {
			if enc, have = r.App.Encoders[cmd.Encoder]; !have {
				r.Errorf("command %s: %s", cmd, core.NewError(cmd.Encoder, nil, core.NoSuchEncoder, cmd.Encoder))
				continue
			}
		}
		r.Logf("dispatching %s", cmd)
		r.wg.Add(1)
		go r.send(ctx, cmd.Effect, send, enc, snapshot)
	}
}

func (r *Runtime) send(ctx context.Context, name string, send core.Send, enc interface{}, snapshot map[string]interface{}) {
	defer r.wg.Done()
	defer func() {
		if x := recover(); x != nil {
			r.Logger.Error("effect panic", zap.String("effect", name), zap.Any("panic", x))
		}
	}()
	send(ctx, r.App.Encoders, enc, snapshot)
}

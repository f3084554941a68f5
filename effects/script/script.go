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

// Package script is an effect that runs ECMAScript with Goja.
//
// The command's encoder gives either the code or a map with "code",
// optional "requires" (library names), optional "args", and an
// optional "tag".  The following properties are available from the
// runtime at _.
//
//    model: the model snapshot.
//    args: the encoder's args.
//    update(ev): send an event to the app.  The "effect" property
//      defaults to this effect's name.
//    encode(spec): evaluate a spec against the model.
//    match(pat, data): run the pattern matcher, giving null on no match.
//    log(x): log x.
//    gensym(): generate a random string.
//    esc(s): URL query-escape the given string.
//    cronNext(expr): the next time for the cron expression.
//
// If the code returns a value, the effect sends {effect, result, tag}.
// If the code fails, the effect sends {effect, error, tag}.
package script

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/elementary/core"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)

	// DefaultTimeout limits an execution when the effect's
	// settings don't give a timeout (in milliseconds).
	DefaultTimeout = time.Second
)

// Interpreter runs code using Goja, which is a Go implementation of
// ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
type Interpreter struct {
	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool

	// LibraryProvider resolves a library name into source.  If
	// nil, DefaultLibraryProvider is used.
	LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)

	// programs caches compilations by source.
	programs sync.Map
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// ProvideLibrary resolves the library name into a library.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider returns a provider for names that are URLs
// with protocols of "file", "http", and "https".  File names are
// relative to the given directory.
func MakeFileLibraryProvider(dir string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean("/" + parts[1])
			bs, err := ioutil.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s", resp.Status)
			}
			bs, err := ioutil.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

// MakeMapLibraryProvider returns a provider that looks up libraries
// in the given map.
func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// AsSource extracts the code and the library names from a string or
// a map with "code" and "requires" properties.
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		return vv, nil, nil
	case map[string]interface{}:
		var is bool
		if code, is = vv["code"].(string); !is {
			return "", nil, errors.New("bad script code")
		}
		switch ls := vv["requires"].(type) {
		case nil:
		case string:
			libs = []string{ls}
		case []interface{}:
			for _, x := range ls {
				s, is := x.(string)
				if !is {
					return "", nil, fmt.Errorf("bad library (%s)", core.TypeOf(x))
				}
				libs = append(libs, s)
			}
		default:
			return "", nil, errors.New("bad requires")
		}
		return code, libs, nil
	default:
		return "", nil, fmt.Errorf("bad script source (%s)", core.TypeOf(src))
	}
}

// Compile resolves the libraries and compiles the code.
//
// This method can block if the interpreter's library provider blocks
// in order to obtain external libraries.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (*goja.Program, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		libsSrc += libSrc + "\n"
	}
	code = libsSrc + wrapSrc(code)

	if p, have := i.programs.Load(code); have {
		return p.(*goja.Program), nil
	}

	p, err := goja.Compile("", code, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", err, code)
	}
	i.programs.Store(code, p)
	return p, nil
}

// Env is what a program can see.
type Env struct {
	// Name is the effect's name.
	Name string

	Model map[string]interface{}
	Args  interface{}

	Update func(map[string]interface{})
	Encode func(spec interface{}) (interface{}, error)
	Decode func(pattern, data interface{}) (interface{}, error)

	Logger *zap.Logger
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func export(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

// Exec runs the program, which is interrupted when ctx is done.
//
// The program's value is returned in canonical (JSON) form.
func (i *Interpreter) Exec(ctx context.Context, env *Env, p *goja.Program) (interface{}, error) {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}

	o := goja.New()

	canonical := func(x interface{}) interface{} {
		y, err := core.Canonicalize(export(x))
		if err != nil {
			// Will end up as a Javascript exception.
			protest(o, err.Error())
		}
		return y
	}

	js := map[string]interface{}{
		"model": env.Model,
		"args":  env.Args,
	}

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	js["gensym"] = func() interface{} {
		return uuid.NewString()
	}

	js["cronNext"] = func(x interface{}) interface{} {
		expr, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(expr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	js["esc"] = func(x interface{}) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	js["log"] = func(x interface{}) interface{} {
		x = export(x)
		env.Logger.Info("script", zap.String("effect", env.Name), zap.Any("log", x))
		return x
	}

	js["update"] = func(x interface{}) interface{} {
		ev, is := canonical(x).(map[string]interface{})
		if !is {
			protest(o, "an event should be an object")
		}
		if _, have := ev["effect"]; !have {
			ev["effect"] = env.Name
		}
		if env.Update != nil {
			env.Update(ev)
		}
		return ev
	}

	js["encode"] = func(spec interface{}) interface{} {
		if env.Encode == nil {
			protest(o, "no encoder")
		}
		v, err := env.Encode(canonical(spec))
		if err != nil {
			protest(o, err.Error())
		}
		return v
	}

	js["match"] = func(pat, data interface{}) interface{} {
		if env.Decode == nil {
			protest(o, "no matcher")
		}
		v, err := env.Decode(canonical(pat), canonical(data))
		if core.Is(err, core.NoMatch) {
			return nil
		}
		if err != nil {
			protest(o, err.Error())
		}
		return v
	}

	o.Set("_", js)

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If Exec calls cancel() after RunProgram returns, the
		// interrupt is harmless.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, Interrupted
		}
		return nil, err
	}

	return core.Canonicalize(v.Export())
}

// Factory makes the script effect.
//
// Settings:
//
//    timeout: milliseconds for each execution (default one second)
//    dir: the directory for "file://" libraries
func Factory(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
	i := NewInterpreter()
	if dir, is := settings["dir"].(string); is {
		i.LibraryProvider = MakeFileLibraryProvider(dir)
	}
	timeout := DefaultTimeout
	if ms, is := core.Number(settings["timeout"]); is && 0 < ms {
		timeout = time.Duration(ms) * time.Millisecond
	}

	return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
		src, err := api.EncodeWith(enc, model)
		if err != nil {
			api.Logger.Error("encode", zap.Error(err))
			return
		}
		if src == nil {
			api.Logger.Warn("no script")
			return
		}

		var tag, args interface{}
		if m, is := src.(map[string]interface{}); is {
			tag, args = m["tag"], m["args"]
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var result interface{}
		err = api.Time(name, func() error {
			p, err := i.Compile(ctx, src)
			if err != nil {
				return err
			}
			env := &Env{
				Name:   name,
				Model:  model,
				Args:   args,
				Update: api.Update,
				Encode: func(spec interface{}) (interface{}, error) {
					return api.Encode(spec, core.NewContext(model))
				},
				Decode: func(pat, data interface{}) (interface{}, error) {
					return api.Decode(pat, data, core.NewContext(model))
				},
				Logger: api.Logger,
			}
			result, err = i.Exec(ctx, env, p)
			return err
		})

		ev := map[string]interface{}{
			"effect": name,
		}
		if tag != nil {
			ev["tag"] = tag
		}
		switch {
		case err != nil:
			api.Logger.Warn("script", zap.Error(err))
			ev["error"] = err.Error()
		case result != nil:
			ev["result"] = result
		default:
			return
		}
		api.Update(ev)
	}, nil
}

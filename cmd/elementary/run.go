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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Comcast/elementary/app"
	"github.com/Comcast/elementary/effects"
	"github.com/Comcast/elementary/sio"

	"github.com/jsccast/yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runOpts struct {
	io        string
	url       string
	stateIn   string
	stateOut  string
	settings  string
	queue     int
	wait      time.Duration
	haltOnEOF bool

	tags             bool
	padTags          bool
	timestamps       bool
	echo             bool
	printCmds        bool
	shellExpand      bool
	writeStatePerMsg bool
}

var runCmd = &cobra.Command{
	Use:   "run APP",
	Short: "Run an app",
	Long: `Runs the app with the standard effects.

With "--io std" (the default), each input line is a JSON event like
{"effect":"ui","action":"inc"}, and {"view":"main"} asks for a view.
With "--io ws", the events come from a WebSocket server, and results
go back to it.`,
	Args: cobra.ExactArgs(1),
	RunE: runApp,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.io, "io", "std", "couplings: std or ws")
	f.StringVar(&runOpts.url, "ws-url", "", "WebSocket URL for --io ws")
	f.StringVar(&runOpts.stateIn, "state-in", "", "resume the model in this JSON file")
	f.StringVar(&runOpts.stateOut, "state-out", "", "write the model to this JSON file")
	f.StringVar(&runOpts.settings, "settings", "", "YAML map that overrides app settings")
	f.IntVar(&runOpts.queue, "queue", sio.DefaultQueueSize, "event queue size")
	f.DurationVar(&runOpts.wait, "wait", time.Second, "wait this long after input EOF before stopping")
	f.BoolVar(&runOpts.haltOnEOF, "halt-on-eof", false, "stop right at input EOF")
	f.BoolVar(&runOpts.tags, "tags", true, "tag output lines")
	f.BoolVar(&runOpts.padTags, "pad", false, "pad tags")
	f.BoolVar(&runOpts.timestamps, "ts", false, "print timestamps")
	f.BoolVar(&runOpts.echo, "echo", false, "echo input")
	f.BoolVar(&runOpts.printCmds, "cmds", false, "print commands")
	f.BoolVar(&runOpts.shellExpand, "sh", false, "shell-expand input")
	f.BoolVar(&runOpts.writeStatePerMsg, "write-state-msg", false, "write the model after each result")
}

func runApp(cmd *cobra.Command, args []string) error {
	a, err := app.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err = overlaySettings(a, runOpts.settings); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	couplings, eof, err := makeCouplings(cmd)
	if err != nil {
		return err
	}
	if err = couplings.Start(ctx); err != nil {
		return err
	}

	conf := &sio.RuntimeConf{
		QueueSize:      runOpts.queue,
		HaltOnInputEOF: runOpts.haltOnEOF || eof == nil,
		Verbose:        verbose,
		Logger:         logger,
	}
	r, err := sio.NewRuntime(ctx, conf, a, effects.For(a, effects.Standard()), couplings)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Loop(gctx)
	})
	if eof != nil && !runOpts.haltOnEOF {
		// Give effects a chance to reply.
		g.Go(func() error {
			select {
			case <-eof:
				logger.Debug("input EOF", zap.Duration("wait", runOpts.wait))
				select {
				case <-time.After(runOpts.wait):
				case <-gctx.Done():
				}
				cancel()
			case <-gctx.Done():
			}
			return nil
		})
	}

	err = g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if serr := couplings.Stop(stopCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// makeCouplings returns the couplings and, for stdio, the channel
// that's closed at input EOF.
func makeCouplings(cmd *cobra.Command) (sio.Couplings, chan bool, error) {
	switch runOpts.io {
	case "std":
		s := sio.NewStdio(runOpts.shellExpand)
		s.In = cmd.InOrStdin()
		s.Out = cmd.OutOrStdout()
		s.Tags = runOpts.tags
		s.PadTags = runOpts.padTags
		s.Timestamps = runOpts.timestamps
		s.EchoInput = runOpts.echo
		s.PrintCmds = runOpts.printCmds
		s.WriteStatePerMsg = runOpts.writeStatePerMsg
		s.StateInputFilename = runOpts.stateIn
		s.StateOutputFilename = runOpts.stateOut
		s.Logger = logger
		return s, s.InputEOF, nil
	case "ws":
		if runOpts.url == "" {
			return nil, nil, errors.New("--ws-url is required with --io ws")
		}
		c := sio.NewWebSocketCouplings(runOpts.url, logger)
		c.StateInputFilename = runOpts.stateIn
		c.StateOutputFilename = runOpts.stateOut
		return c, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown io %q", runOpts.io)
}

// overlaySettings merges a YAML map into the app's settings.
func overlaySettings(a *app.App, src string) error {
	if src == "" {
		return nil
	}
	var x interface{}
	if err := yaml.Unmarshal([]byte(src), &x); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	m, is := app.Plain(x).(map[string]interface{})
	if !is {
		return fmt.Errorf("settings should be a map")
	}
	if a.Settings == nil {
		a.Settings = make(map[string]interface{}, len(m))
	}
	for k, v := range m {
		a.Settings[k] = v
	}
	return nil
}

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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stdio is a fairly simple Couplings that uses stdin for input and
// stdout for output.
//
// Each input line is a JSON event.  The model is optionally crudely
// written as JSON to a file.
type Stdio struct {
	// In is coupled to runtime input.
	In io.Reader

	// Out is coupled to runtime output.
	Out io.Writer

	// ShellExpand enables input to include inline shell commands
	// delimited by '<<' and '>>'.  Use at your own risk, of
	// course!
	ShellExpand bool

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// EchoInput writes input lines (prepended with "input") to
	// the output.
	EchoInput bool

	// Tags prefixes tags indicating type of output ("input",
	// "model", "cmd", "view", "error").
	Tags bool

	// PadTags adds some padding to tags.
	PadTags bool

	// PrintCmds writes each committed command.
	PrintCmds bool

	JSONStore

	// InputEOF will be closed on EOF from stdin.
	InputEOF chan bool

	// WriteStatePerMsg will write out the model after every
	// result.
	//
	// Inefficient!
	WriteStatePerMsg bool

	Logger *zap.Logger

	// printing serializes writes to Out from the input and output
	// goroutines.
	printing sync.Mutex
}

// NewStdio creates a new Stdio.
//
// In and Out are initialized with os.Stdin and os.Stdout
// respectively.
func NewStdio(shellExpand bool) *Stdio {
	return &Stdio{
		In:          os.Stdin,
		Out:         os.Stdout,
		ShellExpand: shellExpand,
		InputEOF:    make(chan bool),
		Logger:      zap.NewNop(),
	}
}

// Start does nothing.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

// Stop writes out the model if requested by StateOutputFilename.
//
// This function waits until IO is complete or was terminated via its
// context.
func (s *Stdio) Stop(ctx context.Context) error {
	return s.JSONStore.Stop(ctx, true)
}

func (s *Stdio) printf(tag, format string, args ...interface{}) {
	s.printing.Lock()
	defer s.printing.Unlock()
	if s.PadTags {
		tag = fmt.Sprintf("% 10s", tag)
	}
	if s.Tags {
		format = tag + " " + format
	}
	if s.Timestamps {
		ts := fmt.Sprintf("%-31s", time.Now().UTC().Format(time.RFC3339Nano))
		format = ts + " " + format
	}

	fmt.Fprintf(s.Out, format, args...)
}

// IO returns channels for reading from stdin and writing to stdout.
func (s *Stdio) IO(ctx context.Context) (chan interface{}, chan *Result, chan bool, error) {
	in := make(chan interface{})
	done := make(chan bool)
	if s.InputEOF == nil {
		s.InputEOF = make(chan bool)
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	s.WG.Add(1)
	go func() {
		defer s.WG.Done()
		defer s.Logger.Debug("stdio input done")
		stdin := bufio.NewReader(s.In)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line, err := stdin.ReadString('\n')
			if (err == io.EOF && len(strings.TrimSpace(line)) == 0) || strings.TrimSpace(line) == "quit" {
				close(done)
				close(s.InputEOF)
				return
			}
			if err != nil && err != io.EOF {
				s.Logger.Error("stdin", zap.Error(err))
				return
			}
			if s.EchoInput {
				s.printf("input", "%s\n", strings.TrimRight(line, "\n"))
			}
			if strings.HasPrefix(line, "#") || len(strings.TrimSpace(line)) == 0 {
				continue
			}
			if s.ShellExpand {
				if line, err = ShellExpand(ctx, line); err != nil {
					s.Logger.Error("stdin", zap.Error(err))
					return
				}
			}

			var ev interface{}
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				s.printf("error", "bad input: %s\n", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case in <- ev:
			}
		}
	}()

	out := make(chan *Result)

	s.WG.Add(1)
	go func() {
		defer s.WG.Done()
		defer s.Logger.Debug("stdio output done")
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-out:
				if r == nil {
					return
				}
				s.print(r)
				if err := s.Update(r); err != nil {
					s.Logger.Error("update", zap.Error(err))
				}
				if s.WriteStatePerMsg && r.Model != nil {
					if err := s.WriteState(ctx); err != nil {
						s.Logger.Error("write state", zap.Error(err))
					}
				}
			}
		}
	}()

	return in, out, done, nil
}

func (s *Stdio) print(r *Result) {
	switch {
	case r.Error != "":
		s.printf("error", "%s\n", r.Error)
	case r.View != nil:
		s.printf("view", "%s\n", JS(r.View))
	case r.Model != nil:
		s.printf("model", "%s\n", JS(r.Model))
		if s.PrintCmds {
			for _, cmd := range r.Cmds {
				s.printf("cmd", "%s\n", cmd)
			}
		}
	}
}

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
	"encoding/json"
	"io/ioutil"
	"os"
	"sync"
)

// JSONStore is a primitive facility to store a runtime's model as
// JSON in a file.
//
// Not glamorous or efficient.
type JSONStore struct {
	// StateOutputFilename, if not empty, will be the filename
	// for writing the model as JSON.
	StateOutputFilename string

	// StateInputFilename optionally gives a filename that
	// contains a model to return when Read is called.
	StateInputFilename string

	// State is the last committed model.
	State map[string]interface{}

	WG sync.WaitGroup

	sync.Mutex
}

func NewJSONStore() *JSONStore {
	return &JSONStore{
		StateOutputFilename: "state.json",
	}
}

// Start does nothing.
func (s *JSONStore) Start(ctx context.Context) error {
	return nil
}

// Stop writes out the model if requested by StateOutputFilename.
//
// This function first waits for s.WG (or ctx) if told to.
func (s *JSONStore) Stop(ctx context.Context, wait bool) error {
	if wait {
		waited := make(chan struct{})
		go func() {
			s.WG.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
		}
	}
	return s.WriteState(ctx)
}

// Read reads s.StateInputFilename, which should contain a JSON
// representation of a model.
//
// A missing file gives an empty model.
func (s *JSONStore) Read(ctx context.Context) (map[string]interface{}, error) {
	if s.StateInputFilename == "" {
		return nil, nil
	}
	js, err := ioutil.ReadFile(s.StateInputFilename)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var model map[string]interface{}
	if err = json.Unmarshal(js, &model); err != nil {
		return nil, err
	}
	s.Lock()
	s.State = model
	s.Unlock()
	return model, nil
}

// WriteState writes the model as JSON.
func (s *JSONStore) WriteState(ctx context.Context) error {
	if s.StateOutputFilename == "" {
		return nil
	}
	s.Lock()
	state := s.State
	s.Unlock()
	if state == nil {
		return nil
	}
	js, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(s.StateOutputFilename, js, 0644)
}

// Update remembers the result's model, if any.
func (s *JSONStore) Update(r *Result) error {
	if r.Model == nil {
		return nil
	}
	s.Lock()
	s.State = r.Model
	s.Unlock()
	return nil
}

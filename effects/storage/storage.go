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

// Package storage is an effect that keeps entries in a BoltDB file.
//
// Keys are stored under a namespace prefix (default "cm:").  A
// command without an encoder reads every entry in the namespace and
// sends {effect, entries}.  Otherwise the encoder gives
// {write: {key: value}, delete: [key]}, or just a map of entries to
// write.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/Comcast/elementary/core"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	// DefaultNamespace prefixes keys.
	DefaultNamespace = "cm:"

	// DefaultFilename is the database file if the settings don't
	// give a "filename".
	DefaultFilename = "elementary.db"

	// Bucket is the one bucket that holds entries.
	Bucket = []byte("elementary")
)

// Storage is a namespace in a BoltDB file.
type Storage struct {
	Namespace string
	Logger    *zap.Logger

	filename string
	db       *bolt.DB
}

func NewStorage(filename, namespace string) *Storage {
	return &Storage{
		Namespace: namespace,
		Logger:    zap.NewNop(),
		filename:  filename,
	}
}

func (s *Storage) Open() error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(Bucket)
		return err
	})
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Entries returns every entry in the namespace.
func (s *Storage) Entries() (map[string]interface{}, error) {
	acc := make(map[string]interface{})
	prefix := []byte(s.Namespace)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(Bucket).Cursor()
		for k, bs := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, bs = c.Next() {
			var v interface{}
			if err := json.Unmarshal(bs, &v); err != nil {
				return err
			}
			acc[string(k[len(prefix):])] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Debug("entries", zap.Int("n", len(acc)))
	return acc, nil
}

// Write puts the given entries and deletes the given keys in one
// transaction.
func (s *Storage) Write(puts map[string]interface{}, deletes []string) error {
	vals := make(map[string][]byte, len(puts))
	for k, v := range puts {
		js, err := json.Marshal(&v)
		if err != nil {
			return err
		}
		vals[k] = js
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		for k, js := range vals {
			if err := b.Put([]byte(s.Namespace+k), js); err != nil {
				return err
			}
		}
		for _, k := range deletes {
			if err := b.Delete([]byte(s.Namespace + k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Factory makes the storage effect.
//
// Settings:
//
//    filename: the BoltDB file (default "elementary.db")
//    namespace: the key prefix (default "cm:")
//
// The database stays open until the runtime stops.
func Factory(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
	filename, _ := settings["filename"].(string)
	if filename == "" {
		filename = DefaultFilename
	}
	ns, have := settings["namespace"].(string)
	if !have {
		ns = DefaultNamespace
	}
	s := NewStorage(filename, ns)
	s.Logger = api.Logger
	if err := s.Open(); err != nil {
		return nil, err
	}
	if api.AtExit != nil {
		api.AtExit(s.Close)
	}

	return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
		if enc == nil {
			var entries map[string]interface{}
			err := api.Time(name, func() error {
				var err error
				entries, err = s.Entries()
				return err
			})
			if err != nil {
				api.Logger.Error("read", zap.Error(err))
				return
			}
			api.Update(map[string]interface{}{
				"effect":  name,
				"entries": entries,
			})
			return
		}

		v, err := api.EncodeWith(enc, model)
		if err != nil {
			api.Logger.Error("encode", zap.Error(err))
			return
		}
		m, is := v.(map[string]interface{})
		if !is {
			api.Logger.Error("storage wants an object", zap.String("got", core.TypeOf(v)))
			return
		}

		puts := m
		var deletes []string
		_, w := m["write"]
		_, d := m["delete"]
		if w || d {
			puts, _ = m["write"].(map[string]interface{})
			ks, _ := m["delete"].([]interface{})
			for _, k := range ks {
				deletes = append(deletes, core.Text(k))
			}
		}
		if err = api.Time(name, func() error { return s.Write(puts, deletes) }); err != nil {
			api.Logger.Error("write", zap.Error(err))
		}
	}, nil
}

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
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketCouplings connects to a WebSocket server.  Each text
// message from the server is an event, and each Result goes back as
// a JSON text message.
type WebSocketCouplings struct {
	URL string

	JSONStore

	Logger *zap.Logger

	in   chan interface{}
	out  chan *Result
	done chan bool
	conn *websocket.Conn

	closing sync.Once
}

func NewWebSocketCouplings(u string, logger *zap.Logger) *WebSocketCouplings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketCouplings{
		URL:    u,
		Logger: logger,
	}
}

// Start creates the WebSocket session and starts processing it.
func (c *WebSocketCouplings) Start(ctx context.Context) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}

	c.in = make(chan interface{})
	c.out = make(chan *Result)
	c.done = make(chan bool)

	c.Logger.Info("wsconnect", zap.String("url", u.String()))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	c.conn = conn

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		defer c.closeInput()
		for {
			_, bs, err := conn.ReadMessage()
			if err != nil {
				c.Logger.Debug("ReadMessage", zap.Error(err))
				return
			}
			if len(bs) == 0 {
				continue
			}

			var ev interface{}
			if err = json.Unmarshal(bs, &ev); err != nil {
				c.Logger.Warn("Unmarshal", zap.Error(err), zap.ByteString("message", bs))
				continue
			}

			select {
			case <-ctx.Done():
				return
			case c.in <- ev:
			}
		}
	}()

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-c.out:
				if r == nil {
					return
				}
				js, err := json.Marshal(r)
				if err != nil {
					c.Logger.Error("Marshal", zap.Error(err))
					continue
				}
				if err = conn.WriteMessage(websocket.TextMessage, js); err != nil {
					c.Logger.Error("WriteMessage", zap.Error(err))
					return
				}
				if err := c.Update(r); err != nil {
					c.Logger.Error("Update", zap.Error(err))
					return
				}
			}
		}
	}()

	return nil
}

func (c *WebSocketCouplings) closeInput() {
	c.closing.Do(func() {
		close(c.done)
	})
}

// IO just returns the channels that Start() initialized.
func (c *WebSocketCouplings) IO(ctx context.Context) (chan interface{}, chan *Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop terminates the WebSocket connection and writes the model if
// requested.
func (c *WebSocketCouplings) Stop(ctx context.Context) error {
	c.Logger.Info("Disconnecting")
	if c.conn != nil {
		c.conn.Close()
	}
	c.closeInput()
	return c.JSONStore.Stop(ctx, true)
}

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

// Package http is an effect that makes HTTP requests.
//
// The command's encoder gives the request:
//
//    method:  default "get"
//    url:     the complete URL, or
//    path:    appended to the url setting
//    query:   map of query parameters
//    headers: map of request headers (over the headers setting)
//    body:    JSON unless the content-type header says otherwise,
//             in which case the body's properties are sent as a
//             multipart form
//    as:      the event property for the reply
//    tag:     returned in the reply (default: a new UUID)
//
// The reply is an event {effect, headers, status, body, tag}, or
// {effect, <as>: {headers, status, body, tag}} when "as" is given.
// A failure is {effect, <as or "error">: "error" or "timeout", tag}.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net"
	nethttp "net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Comcast/elementary/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const JSONMIME = "application/json"

// DefaultTimeout is used when the effect's settings don't give a
// timeout (in milliseconds).
var DefaultTimeout = 2 * time.Second

// Request is what a command's encoder gives.
type Request struct {
	Method  string                 `json:"method,omitempty"`
	URL     string                 `json:"url,omitempty"`
	Path    string                 `json:"path,omitempty"`
	Query   map[string]interface{} `json:"query,omitempty"`
	Headers map[string]interface{} `json:"headers,omitempty"`
	Body    interface{}            `json:"body,omitempty"`
	As      string                 `json:"as,omitempty"`
	Tag     interface{}            `json:"tag,omitempty"`
	Debug   bool                   `json:"debug,omitempty"`
}

// Response is the reply.
type Response struct {
	Headers map[string]interface{} `json:"headers"`
	Status  int                    `json:"status"`
	Body    interface{}            `json:"body"`
	Tag     interface{}            `json:"tag,omitempty"`
}

// Effect holds an http effect's gear.
type Effect struct {
	Name     string
	Settings map[string]interface{}
	Client   *nethttp.Client

	api *core.API
}

// New makes an Effect with its own cookie jar.
func New(name string, settings map[string]interface{}, api *core.API) (*Effect, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	timeout := DefaultTimeout
	if ms, is := core.Number(settings["timeout"]); is && 0 < ms {
		timeout = time.Duration(ms) * time.Millisecond
	}
	return &Effect{
		Name:     name,
		Settings: settings,
		Client: &nethttp.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		api: api,
	}, nil
}

// Factory makes the http effect.
//
// Settings:
//
//    url: the base URL for requests that give a path
//    headers: headers for every request
//    timeout: milliseconds (default two seconds)
func Factory(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
	e, err := New(name, settings, api)
	if err != nil {
		return nil, err
	}
	return e.Send, nil
}

// Send performs one request and reports the reply as an event.
func (e *Effect) Send(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
	v, err := e.api.EncodeWith(enc, model)
	if err != nil {
		e.api.Logger.Error("encode", zap.Error(err))
		return
	}
	var r Request
	if err = remarshal(v, &r); err != nil {
		e.api.Logger.Error("bad request", zap.Error(err), zap.Any("request", v))
		return
	}
	if r.Tag == nil {
		r.Tag = uuid.NewString()
	}

	var resp *Response
	err = e.api.Time(e.Name, func() error {
		var err error
		resp, err = e.Do(ctx, &r)
		return err
	})
	e.api.Update(e.reply(&r, resp, err))
}

func (e *Effect) reply(r *Request, resp *Response, err error) map[string]interface{} {
	ev := map[string]interface{}{}
	if err != nil {
		e.api.Logger.Warn("request failed", zap.String("url", r.URL), zap.Error(err))
		reason := "error"
		if isTimeout(err) {
			reason = "timeout"
		}
		as := r.As
		if as == "" {
			as = "error"
		}
		ev[as] = reason
		ev["tag"] = r.Tag
	} else {
		payload := map[string]interface{}{
			"headers": resp.Headers,
			"status":  float64(resp.Status),
			"body":    resp.Body,
			"tag":     resp.Tag,
		}
		if r.As == "" {
			ev = payload
		} else {
			ev[r.As] = payload
		}
	}
	ev["effect"] = e.Name
	return ev
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// URL computes the request's URL including its query.
func (e *Effect) URL(r *Request) (string, error) {
	u := r.URL
	if u == "" {
		base, _ := e.Settings["url"].(string)
		if base == "" {
			return "", errors.New("no url")
		}
		u = base + r.Path
	}
	if len(r.Query) == 0 {
		return u, nil
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	for k, v := range r.Query {
		q.Set(k, core.Text(v))
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func headers(h nethttp.Header, m map[string]interface{}) {
	for k, v := range m {
		h.Set(k, core.Text(v))
	}
}

// body encodes the request body and returns its content type.
func body(r *Request) (io.Reader, string, error) {
	if r.Body == nil {
		return nil, "", nil
	}
	ct := JSONMIME
	for k, v := range r.Headers {
		if strings.EqualFold(k, "content-type") {
			ct = core.Text(v)
		}
	}
	if ct == JSONMIME {
		js, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(js), JSONMIME, nil
	}

	m, is := r.Body.(map[string]interface{})
	if !is {
		return strings.NewReader(core.Text(r.Body)), ct, nil
	}
	var (
		buf  bytes.Buffer
		w    = multipart.NewWriter(&buf)
		keys = make([]string, 0, len(m))
	)
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, core.Text(m[k])); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// Do is the low-level, synchronous method to make the request.
func (e *Effect) Do(ctx context.Context, r *Request) (*Response, error) {
	u, err := e.URL(r)
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = "GET"
	}
	rd, ct, err := body(r)
	if err != nil {
		return nil, err
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if hs, is := e.Settings["headers"].(map[string]interface{}); is {
		headers(req.Header, hs)
	}
	headers(req.Header, r.Headers)
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bs, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	result := &Response{
		Headers: make(map[string]interface{}, len(resp.Header)),
		Status:  resp.StatusCode,
		Body:    string(bs),
		Tag:     r.Tag,
	}
	for k := range resp.Header {
		result.Headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), JSONMIME) {
		var x interface{}
		if err := json.Unmarshal(bs, &x); err != nil {
			e.api.Logger.Warn("bad JSON body", zap.Error(err))
		} else {
			result.Body = x
		}
	}

	if r.Debug || core.Truthy(e.Settings["debug"]) {
		e.api.Logger.Info("http",
			zap.String("method", method),
			zap.String("url", u),
			zap.Int("status", result.Status))
	}

	return result, nil
}

func remarshal(x interface{}, dst interface{}) error {
	js, err := json.Marshal(x)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(js, dst); err != nil {
		return fmt.Errorf("%s: %w", js, err)
	}
	return nil
}

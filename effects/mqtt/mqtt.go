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

// Package mqtt is an effect that talks to an MQTT broker.
//
// The encoder's output is published.  If it's an object with a
// "payload", then its "topic", "qos", and "retain" say how to publish
// that payload.  Otherwise the whole output goes to the default
// topic.  Messages on subscribed topics arrive as events
// {effect, topic, payload}, where the payload is parsed as JSON if
// possible.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/Comcast/elementary/core"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	// NewClient makes the MQTT client.
	NewClient = mqtt.NewClient

	// ConnectTimeout limits the initial connection.
	ConnectTimeout = 10 * time.Second

	// PublishTimeout limits each publication.
	PublishTimeout = 5 * time.Second

	// DefaultTopic is for publications that don't give one.
	DefaultTopic = "elementary"
)

// Options makes client options from the effect's settings, which
// follow mosquitto_sub's command line:
//
//    broker (default "tcp://localhost:1883"), clientId, username,
//    password, keepAlive (seconds), clean, reconnect, insecure,
//    cafile, cert, key, willTopic, willPayload, willQos, willRetain
func Options(settings map[string]interface{}) (*mqtt.ClientOptions, error) {
	str := func(k string) string {
		s, _ := settings[k].(string)
		return s
	}

	opts := mqtt.NewClientOptions()

	broker := str("broker")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	opts.AddBroker(broker)
	opts.SetClientID(str("clientId"))
	keepAlive := 600.0
	if n, is := core.Number(settings["keepAlive"]); is {
		keepAlive = n
	}
	opts.SetKeepAlive(time.Duration(keepAlive) * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(ConnectTimeout)
	opts.Username = str("username")
	opts.Password = str("password")
	opts.AutoReconnect = core.Truthy(settings["reconnect"])
	opts.CleanSession = true
	if b, is := settings["clean"].(bool); is {
		opts.CleanSession = b
	}

	if topic := str("willTopic"); topic != "" {
		if str("willPayload") == "" {
			return nil, errors.New("will topic without payload")
		}
		qos, _ := core.Number(settings["willQos"])
		opts.WillEnabled = true
		opts.WillTopic = topic
		opts.WillPayload = []byte(str("willPayload"))
		opts.WillRetained = core.Truthy(settings["willRetain"])
		opts.WillQos = byte(qos)
	}

	if strings.HasPrefix(broker, "ssl:") || strings.HasPrefix(broker, "tls:") || strings.HasPrefix(broker, "wss:") {
		conf, err := tlsConfig(str("cafile"), str("cert"), str("key"), core.Truthy(settings["insecure"]))
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(conf)
	}

	return opts, nil
}

func tlsConfig(caFilename, certFilename, keyFilename string, insecure bool) (*tls.Config, error) {
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}
	if caFilename != "" {
		certs, err := ioutil.ReadFile(caFilename)
		if err != nil {
			return nil, fmt.Errorf("couldn't read '%s': %w", caFilename, err)
		}
		rootCAs.AppendCertsFromPEM(certs)
	}

	conf := &tls.Config{
		InsecureSkipVerify: insecure,
		RootCAs:            rootCAs,
	}

	if keyFilename != "" {
		cert, err := tls.LoadX509KeyPair(certFilename, keyFilename)
		if err != nil {
			return nil, err
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	return conf, nil
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	var (
		topic string
		qos   byte
	)
	if _, err := fmt.Sscanf(strings.Replace(s, ":", " ", 1), "%s %d", &topic, &qos); err == nil {
		return topic, qos
	}
	return s, 0
}

// Event makes the app event for an incoming message.
func Event(name, topic string, payload []byte) map[string]interface{} {
	var x interface{}
	if err := json.Unmarshal(payload, &x); err != nil {
		x = string(payload)
	}
	return map[string]interface{}{
		"effect":  name,
		"topic":   topic,
		"payload": x,
	}
}

// Publication is what Send publishes.
type Publication struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload []byte
}

// NewPublication interprets an encoder's output.
func NewPublication(v interface{}, defaultTopic string) (*Publication, error) {
	topic, qos := parseTopic(defaultTopic)
	p := &Publication{
		Topic: topic,
		QoS:   qos,
	}
	payload := v
	if m, is := v.(map[string]interface{}); is {
		if x, have := m["payload"]; have {
			payload = x
			if s, is := m["topic"].(string); is {
				p.Topic, p.QoS = parseTopic(s)
			}
			if n, is := core.Number(m["qos"]); is {
				p.QoS = byte(n)
			}
			p.Retain = core.Truthy(m["retain"])
		}
	}
	if s, is := payload.(string); is {
		p.Payload = []byte(s)
		return p, nil
	}
	js, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}
	p.Payload = js
	return p, nil
}

// Factory makes the mqtt effect.
//
// Besides the connection settings (see Options), "subscribe" is a
// list of TOPIC[:QOS] subscriptions, "topic" is the default topic for
// publications, and "quiesce" is the disconnection quiescence in
// milliseconds.
func Factory(name string, settings map[string]interface{}, api *core.API) (core.Send, error) {
	opts, err := Options(settings)
	if err != nil {
		return nil, err
	}

	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		api.Logger.Debug("incoming", zap.String("topic", msg.Topic()))
		api.Update(Event(name, msg.Topic(), msg.Payload()))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		api.Logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := NewClient(opts)
	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return nil, t.Error()
	}

	var subs []string
	switch vv := settings["subscribe"].(type) {
	case string:
		subs = strings.Split(vv, ",")
	case []interface{}:
		for _, x := range vv {
			subs = append(subs, core.Text(x))
		}
	}
	for _, s := range subs {
		topic, qos := parseTopic(strings.TrimSpace(s))
		if topic == "" {
			continue
		}
		api.Logger.Info("subscribing", zap.String("topic", topic), zap.Int("qos", int(qos)))
		if t := client.Subscribe(topic, qos, nil); t.Wait() && t.Error() != nil {
			client.Disconnect(0)
			return nil, t.Error()
		}
	}

	quiesce := 100.0
	if n, is := core.Number(settings["quiesce"]); is {
		quiesce = n
	}
	if api.AtExit != nil {
		api.AtExit(func() error {
			client.Disconnect(uint(quiesce))
			return nil
		})
	}

	defaultTopic, _ := settings["topic"].(string)
	if defaultTopic == "" {
		defaultTopic = DefaultTopic
	}

	return func(ctx context.Context, encoders map[string]interface{}, enc interface{}, model map[string]interface{}) {
		v, err := api.EncodeWith(enc, model)
		if err != nil {
			api.Logger.Error("encode", zap.Error(err))
			return
		}
		p, err := NewPublication(v, defaultTopic)
		if err != nil {
			api.Logger.Error("publication", zap.Error(err))
			return
		}
		err = api.Time(name, func() error {
			t := client.Publish(p.Topic, p.QoS, p.Retain, p.Payload)
			if !t.WaitTimeout(PublishTimeout) {
				return errors.New("publish timeout")
			}
			return t.Error()
		})
		if err != nil {
			api.Logger.Error("publish", zap.String("topic", p.Topic), zap.Error(err))
		}
	}, nil
}

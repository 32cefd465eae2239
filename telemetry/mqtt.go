package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("telemetry: publish timed out")

// MQTTOptions configures an MQTT publisher
type MQTTOptions struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883
	Broker string `yaml:"broker"`

	// ClientID defaults to picamfft
	ClientID string `yaml:"clientid"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Topic is the stem.  Summaries go to <Topic>/frame, reports to
	// <Topic>/report.  Defaults to picamfft.
	Topic string `yaml:"topic"`

	// QoS is the MQTT quality of service, 0, 1 or 2
	QoS byte `yaml:"qos"`

	// Timeout bounds connecting and each publish.  Defaults to 5 s.
	Timeout time.Duration `yaml:"timeout"`

	Logger *zerolog.Logger `yaml:"-"`
}

// publisher is the part of an mqtt.Client used to publish
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes JSON documents to an MQTT broker
type MQTT struct {
	client  publisher
	close   func()
	topic   string
	qos     byte
	timeout time.Duration
	log     zerolog.Logger
}

// DialMQTT connects to the broker in opts
func DialMQTT(opts MQTTOptions) (*MQTT, error) {
	opts = opts.withDefaults()
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.Timeout).
		SetAutoReconnect(true)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	c := mqtt.NewClient(co)
	tok := c.Connect()
	if !tok.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("telemetry: connect to %s: timed out", opts.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to %s: %w", opts.Broker, err)
	}
	m := newMQTT(c, opts)
	m.close = func() { c.Disconnect(250) }
	m.log.Info().Str("broker", opts.Broker).Str("topic", opts.Topic).Msg("telemetry connected")
	return m, nil
}

func newMQTT(p publisher, opts MQTTOptions) *MQTT {
	opts = opts.withDefaults()
	m := &MQTT{
		client:  p,
		close:   func() {},
		topic:   opts.Topic,
		qos:     opts.QoS,
		timeout: opts.Timeout,
		log:     zerolog.Nop(),
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	}
	return m
}

func (o MQTTOptions) withDefaults() MQTTOptions {
	if o.ClientID == "" {
		o.ClientID = "picamfft"
	}
	if o.Topic == "" {
		o.Topic = "picamfft"
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	return o
}

func (m *MQTT) send(sub string, retained bool, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := m.topic + "/" + sub
	tok := m.client.Publish(topic, m.qos, retained, b)
	if !tok.WaitTimeout(m.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("telemetry: publish %s: %w", topic, err)
	}
	m.log.Debug().Str("topic", topic).Int("size", len(b)).Msg("published")
	return nil
}

// Frame implements Publisher
func (m *MQTT) Frame(s FrameSummary) error {
	return m.send("frame", false, s)
}

// Report implements Publisher.  Reports are retained so late subscribers see
// the last run.
func (m *MQTT) Report(r Report) error {
	return m.send("report", true, r)
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	m.close()
	return nil
}

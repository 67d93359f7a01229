// Package mqtt mirrors controller events to an MQTT broker.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/events"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Config locates the broker.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// client is the part of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher implements events.Publisher on top of an MQTT connection.
type Publisher struct {
	cli    client
	prefix string
	log    zerolog.Logger
}

// New connects to the broker. Connection failures are returned, the caller
// decides whether to run without the mirror.
func New(cfg Config, log zerolog.Logger) (*Publisher, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}
	server, err := brokerServer(u)
	if err != nil {
		return nil, err
	}

	log = log.With().Str("component", "mqtt").Str("broker", server).Logger()

	opts := paho.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(paho.Client) { log.Info().Msg("mqtt connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Error().Err(err).Msg("mqtt connection lost") }
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "wss" || u.Scheme == "mqtts" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	cli := paho.NewClient(opts)
	t := cli.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to %s: timed out", server)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", server, err)
	}

	return newPublisher(cli, cfg.TopicPrefix, log), nil
}

func newPublisher(cli client, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		cli:    cli,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

// brokerServer converts a broker URL into the form paho expects.
func brokerServer(u *url.URL) (string, error) {
	if u.Host == "" {
		return "", fmt.Errorf("broker url %q has no host", u.String())
	}
	switch u.Scheme {
	case "mqtt", "tcp":
		return "tcp://" + u.Host, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + u.Host, nil
	case "ws", "wss":
		return u.Scheme + "://" + u.Host + u.Path, nil
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// Topic maps an event type to a topic below prefix, e.g.
// "home/device/state_changed" for device.state_changed.
func Topic(prefix string, t events.MessageType) string {
	suffix := strings.ReplaceAll(string(t), ".", "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// Publish implements events.Publisher. Delivery is confirmed asynchronously so
// a slow broker never blocks the caller.
func (p *Publisher) Publish(msg events.Message) {
	data, err := msg.JSON()
	if err != nil {
		p.log.Error().Err(err).Str("type", string(msg.Type)).Msg("encoding event")
		return
	}

	topic := Topic(p.prefix, msg.Type)
	token := p.cli.Publish(topic, 0, false, data)

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
			return
		}
		if err := token.Error(); err != nil {
			p.log.Error().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		}
	}()
}

// Close disconnects from the broker, allowing in-flight messages 250ms.
func (p *Publisher) Close() {
	p.cli.Disconnect(250)
}

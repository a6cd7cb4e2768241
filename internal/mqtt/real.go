package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	applog "github.com/sweeney/gpio-manager/internal/log"
	"github.com/sweeney/gpio-manager/internal/metrics"
	"github.com/sweeney/gpio-manager/internal/status"
)

// DefaultBacklog is the number of messages held while disconnected.
const DefaultBacklog = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// errPublishTimeout marks a publish the client did not acknowledge in time.
// The connection may be dead without paho having noticed yet.
var errPublishTimeout = errors.New("publish timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	Backlog  int

	// OnCommand is called for every message on an output set topic.
	OnCommand func(topic string, payload []byte) error

	// OnConnectionChange is called when the broker connection goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. While the connection is
// down messages are queued and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	opts   Options
	log    zerolog.Logger

	mu        sync.Mutex
	pending   *backlog
	connected bool
	connects  int
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is unreachable the publisher is still returned and keeps retrying in the
// background; only a rejected connection is an error.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	if opts.OnConnectionChange == nil {
		opts.OnConnectionChange = func(bool) {}
	}
	log := applog.WithComponent("mqtt").With().Str("broker", opts.Broker).Logger()
	p := &RealPublisher{
		opts:    opts,
		log:     log,
		pending: newBacklog(opts.Backlog, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(opts.Prefix), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Dur("timeout", connectTimeout).Msg("broker not reachable yet, queueing messages")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	queued := p.pending.drain()
	p.mu.Unlock()

	p.log.Info().Bool("reconnect", reconnect).Int("queued", len(queued)).Msg("connected")
	metrics.SetMQTTBuffered(0)
	p.opts.OnConnectionChange(true)

	if p.opts.OnCommand != nil {
		token := c.Subscribe(setFilter(p.opts.Prefix), 1, p.onMessage)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			p.log.Error().Err(token.Error()).Msg("subscribe failed")
		}
	}

	// The broker holds our OFFLINE will as the retained system message.
	if reconnect {
		ev := SystemEvent{Timestamp: time.Now(), Event: EventReconnected, Retained: true}
		if err := p.PublishSystem(ev); err != nil {
			p.log.Warn().Err(err).Msg("publish reconnect event failed")
		}
	}

	for _, m := range queued {
		if err := p.send(m); err != nil {
			p.log.Warn().Err(err).Str("topic", m.topic).Msg("replay failed")
			if errors.Is(err, errPublishTimeout) {
				p.requeue(m)
			}
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Warn().Err(err).Msg("connection lost")
	p.opts.OnConnectionChange(false)
}

func (p *RealPublisher) onMessage(_ paho.Client, msg paho.Message) {
	if err := p.opts.OnCommand(msg.Topic(), msg.Payload()); err != nil {
		p.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("command rejected")
	}
}

// publish sends m now, or queues it while disconnected. A send that times
// out is queued too and goes out again on the next connect. While the link
// is half-dead that wait blocks the caller, usually a poll goroutine, for up
// to publishTimeout.
func (p *RealPublisher) publish(m pending) error {
	p.mu.Lock()
	if !p.connected {
		p.pending.push(m)
		n := p.pending.len()
		p.mu.Unlock()
		metrics.SetMQTTBuffered(n)
		return nil
	}
	p.mu.Unlock()

	err := p.send(m)
	if errors.Is(err, errPublishTimeout) {
		p.log.Warn().Str("topic", m.topic).Msg("publish timed out, queued for resend")
		p.requeue(m)
		return nil
	}
	return err
}

func (p *RealPublisher) requeue(m pending) {
	p.mu.Lock()
	p.pending.push(m)
	n := p.pending.len()
	p.mu.Unlock()
	metrics.SetMQTTBuffered(n)
}

func (p *RealPublisher) send(m pending) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishState sends the retained state of one device.
func (p *RealPublisher) PublishState(d status.DeviceStatus) error {
	return p.publish(pending{
		topic:    StateTopic(p.opts.Prefix, d.Name),
		payload:  FormatStatePayload(d),
		qos:      1,
		retained: true,
	})
}

// PublishSystem sends a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pending{
		topic:    SystemTopic(p.opts.Prefix),
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

package mqtt

import (
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-manager/internal/logic"
	"github.com/sweeney/gpio-manager/internal/status"
)

// stubToken completes according to its fields without waiting.
type stubToken struct {
	done bool
	err  error
}

func (t stubToken) Wait() bool                     { return t.done }
func (t stubToken) WaitTimeout(time.Duration) bool { return t.done }
func (t stubToken) Error() error                   { return t.err }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

// stubClient records publishes and answers with token. Methods not
// overridden panic through the nil embedded interface.
type stubClient struct {
	paho.Client
	token  stubToken
	topics []string
}

func (c *stubClient) Publish(topic string, _ byte, _ bool, _ interface{}) paho.Token {
	c.topics = append(c.topics, topic)
	return c.token
}

func newStubPublisher(token stubToken) (*RealPublisher, *stubClient) {
	c := &stubClient{token: token}
	return &RealPublisher{
		client:    c,
		opts:      Options{Prefix: "gpio-manager"},
		log:       zerolog.Nop(),
		pending:   newBacklog(8, zerolog.Nop()),
		connected: true,
	}, c
}

func TestPublishTimeoutQueuesForResend(t *testing.T) {
	p, c := newStubPublisher(stubToken{done: false})

	err := p.PublishState(status.DeviceStatus{Name: "door", Kind: status.KindInput, State: logic.StateOn})
	if err != nil {
		t.Fatalf("expected nil error after queueing, got %v", err)
	}
	if len(c.topics) != 1 {
		t.Fatalf("expected one publish attempt, got %d", len(c.topics))
	}

	queued := p.pending.drain()
	if len(queued) != 1 {
		t.Fatalf("expected the timed-out message to be queued, got %d", len(queued))
	}
	if queued[0].topic != StateTopic("gpio-manager", "door") || !queued[0].retained {
		t.Errorf("unexpected queued message: %+v", queued[0])
	}
}

func TestPublishErrorIsReturnedNotQueued(t *testing.T) {
	p, _ := newStubPublisher(stubToken{done: true, err: errors.New("not authorised")})

	err := p.PublishState(status.DeviceStatus{Name: "door", Kind: status.KindInput, State: logic.StateOn})
	if err == nil {
		t.Fatal("expected the publish error")
	}
	if n := p.pending.len(); n != 0 {
		t.Errorf("expected nothing queued, got %d", n)
	}
}

func TestPublishSuccessSendsDirectly(t *testing.T) {
	p, c := newStubPublisher(stubToken{done: true})

	if err := p.PublishSystem(SystemEvent{Event: EventHeartbeat}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(c.topics) != 1 || c.topics[0] != SystemTopic("gpio-manager") {
		t.Errorf("topics = %v", c.topics)
	}
	if n := p.pending.len(); n != 0 {
		t.Errorf("expected nothing queued, got %d", n)
	}
}

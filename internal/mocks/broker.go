package mocks

import (
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PublishedMessage is a message recorded by Broker.
type PublishedMessage struct {
	Topic   string
	Payload []byte
}

// Broker is an in-memory MQTT client with topic filter matching. Messages are delivered
// synchronously to matching subscribers from inside Publish.
type Broker struct {
	mu        sync.Mutex
	connected bool
	subs      map[string]mqtt.MessageHandler
	published []PublishedMessage

	// PublishErr, when set, fails every publish whose topic has this prefix.
	PublishErr       error
	PublishErrPrefix string
	// SubscribeErr, when set, fails every subscribe.
	SubscribeErr error
}

// NewBroker returns a connected broker.
func NewBroker() *Broker {
	return &Broker{
		connected: true,
		subs:      make(map[string]mqtt.MessageHandler),
	}
}

func (b *Broker) Connect() mqtt.Token {
	b.SetConnected(true)
	return &DoneToken{}
}

func (b *Broker) SetConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

func (b *Broker) IsConnectionOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Broker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		return &DoneToken{Err: fmt.Errorf("unsupported payload type %T", payload)}
	}

	b.mu.Lock()
	if b.PublishErr != nil && strings.HasPrefix(topic, b.PublishErrPrefix) {
		err := b.PublishErr
		b.mu.Unlock()
		return &DoneToken{Err: err}
	}
	b.published = append(b.published, PublishedMessage{Topic: topic, Payload: data})
	var handlers []mqtt.MessageHandler
	for filter, h := range b.subs {
		if TopicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(nil, NewMockMessage(topic, data))
	}
	return &DoneToken{}
}

func (b *Broker) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubscribeErr != nil {
		return &DoneToken{Err: b.SubscribeErr}
	}
	b.subs[topic] = callback
	return &DoneToken{}
}

func (b *Broker) Unsubscribe(topics ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.subs, t)
	}
	return &DoneToken{}
}

func (b *Broker) Disconnect(_ uint) {
	b.SetConnected(false)
}

// Subscribed reports whether a subscription for the exact filter exists.
func (b *Broker) Subscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[filter]
	return ok
}

// Published returns the messages published on topics starting with prefix.
func (b *Broker) Published(prefix string) []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []PublishedMessage
	for _, m := range b.published {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

// TopicMatches reports whether topic matches an MQTT subscription filter.
func TopicMatches(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

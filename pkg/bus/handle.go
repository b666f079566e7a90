// Package bus implements a small service call bus on top of MQTT: named services, method calls with
// one or many replies, call cancellation and per-call reply routing.
//
// Topic layout for a service named S:
//
//	S/<method>      requests addressed to the service
//	S/reply/<token> replies to calls issued by the service
//	S/cancel        cancellation of calls previously addressed to S
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

const (
	// CancelMethod is the method every service receives call cancellations on.
	CancelMethod = "cancel"

	replySegment     = "reply"
	subscribeTimeout = 5 * time.Second
)

var (
	ErrInvalidServiceName = errors.New("invalid service name")
	ErrInvalidURI         = errors.New("invalid service uri")
	ErrNotConnected       = errors.New("bus connection is not open")
	ErrHandleClosed       = errors.New("bus handle is closed")
)

// Request is the envelope published to a service method.
type Request struct {
	Token   string          `json:"token"`
	Sender  string          `json:"sender"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReplyHandler receives the payload of each reply to a call. It runs on a transport goroutine.
type ReplyHandler func(payload []byte)

// MethodHandler serves requests addressed to a registered method. It runs on a transport goroutine.
type MethodHandler func(req Request)

// Option configures a Handle.
type Option func(*Handle)

// WithClock replaces the clock used for call timeouts.
func WithClock(c clock.Clock) Option {
	return func(h *Handle) { h.clock = c }
}

// WithQoS sets the MQTT QoS used for all bus traffic.
func WithQoS(qos byte) Option {
	return func(h *Handle) { h.qos = qos }
}

// Handle is a service registered on the bus. It owns the reply inbox and the table of live calls.
type Handle struct {
	name   string
	client mqtt.MQTTClient
	qos    byte
	clock  clock.Clock
	logger zerolog.Logger

	calls   cmap.ConcurrentMap[string, *call]
	methods cmap.ConcurrentMap[string, MethodHandler]
	closed  atomic.Bool
}

// RegisterService registers name on the bus and subscribes its reply inbox.
func RegisterService(client mqtt.MQTTClient, name string, logger zerolog.Logger, opts ...Option) (*Handle, error) {
	if !validServiceName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}
	if client == nil || !client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}

	h := &Handle{
		name:    name,
		client:  client,
		qos:     1,
		clock:   clock.New(),
		logger:  logger.With().Str("service", name).Logger(),
		calls:   cmap.New[*call](),
		methods: cmap.New[MethodHandler](),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.subscribe(path.Join(name, replySegment, "+"), h.onReply); err != nil {
		return nil, fmt.Errorf("failed to subscribe reply inbox: %w", err)
	}

	h.logger.Info().Msg("Service registered on bus")
	return h, nil
}

// Name returns the registered service name.
func (h *Handle) Name() string {
	return h.name
}

// PendingCalls returns the number of live calls issued through the handle.
func (h *Handle) PendingCalls() int {
	return h.calls.Count()
}

// CallOneReply calls a method expecting exactly one reply. If no reply arrives within timeout
// (when non-zero) the handler receives a "Message timeout" failure reply instead.
func (h *Handle) CallOneReply(uri string, payload []byte, timeout time.Duration, handler ReplyHandler) (Call, error) {
	return h.call(uri, payload, true, timeout, handler)
}

// CallMultiReply calls a method expecting any number of replies until the call is cancelled.
func (h *Handle) CallMultiReply(uri string, payload []byte, handler ReplyHandler) (Call, error) {
	return h.call(uri, payload, false, 0, handler)
}

func (h *Handle) call(uri string, payload []byte, oneReply bool, timeout time.Duration, handler ReplyHandler) (Call, error) {
	if h.closed.Load() {
		return nil, ErrHandleClosed
	}
	if handler == nil {
		return nil, errors.New("reply handler is required")
	}
	service, method, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload for %s is not valid JSON", uri)
	}
	if !h.client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}

	c := &call{
		handle:   h,
		token:    uuid.NewString(),
		service:  service,
		oneReply: oneReply,
		handler:  handler,
	}
	data, err := json.Marshal(Request{
		Token:   c.token,
		Sender:  h.name,
		ReplyTo: path.Join(h.name, replySegment, c.token),
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	// The call must be routable before the request leaves, a reply can beat Publish's return.
	h.calls.Set(c.token, c)
	if oneReply && timeout > 0 {
		c.armTimeout(timeout)
	}

	token := h.client.Publish(path.Join(service, method), h.qos, false, data)
	go h.watchPublish(c, token)

	h.logger.Debug().
		Str("uri", uri).
		Str("token", c.token).
		Bool("one_reply", oneReply).
		Dur("timeout", timeout).
		Msg("Bus call issued")
	return c, nil
}

// watchPublish turns an asynchronous publish failure into a failure reply.
func (h *Handle) watchPublish(c *call, token mqttLib.Token) {
	token.Wait()
	err := token.Error()
	if err == nil {
		return
	}
	if _, ok := h.calls.Pop(c.token); !ok {
		return
	}
	c.stopTimeout()
	h.logger.Warn().Err(err).Str("token", c.token).Msg("Failed to publish bus request")
	c.handler(failureReply(err.Error()))
}

// onReply routes an inbox message to its call.
func (h *Handle) onReply(_ mqttLib.Client, msg mqttLib.Message) {
	token := path.Base(msg.Topic())
	c, ok := h.calls.Get(token)
	if !ok {
		h.logger.Debug().Str("token", token).Msg("Dropping reply for unknown call")
		return
	}
	if c.oneReply {
		if _, ok := h.calls.Pop(token); !ok {
			return
		}
		c.stopTimeout()
	}
	c.handler(msg.Payload())
}

// RegisterMethod serves requests sent to name/method.
func (h *Handle) RegisterMethod(method string, handler MethodHandler) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	if method == "" || strings.ContainsAny(method, "+#") {
		return fmt.Errorf("invalid method name %q", method)
	}
	h.methods.Set(method, handler)

	err := h.subscribe(path.Join(h.name, method), func(_ mqttLib.Client, msg mqttLib.Message) {
		var req Request
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			h.logger.Warn().Err(err).Str("method", method).Msg("Dropping malformed request")
			return
		}
		handler(req)
	})
	if err != nil {
		h.methods.Remove(method)
		return fmt.Errorf("failed to register method %s: %w", method, err)
	}
	return nil
}

// Respond publishes a reply to the caller of req.
func (h *Handle) Respond(req Request, payload []byte) error {
	if req.ReplyTo == "" {
		return errors.New("request has no reply address")
	}
	token := h.client.Publish(req.ReplyTo, h.qos, false, payload)
	if !token.WaitTimeout(subscribeTimeout) {
		return errors.New("timed out publishing reply")
	}
	return token.Error()
}

// Close cancels every live call and drops all subscriptions. It is safe to call more than once.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	for _, c := range h.calls.Items() {
		c.Cancel()
	}

	topics := []string{path.Join(h.name, replySegment, "+")}
	for _, method := range h.methods.Keys() {
		topics = append(topics, path.Join(h.name, method))
	}
	token := h.client.Unsubscribe(topics...)
	if !token.WaitTimeout(subscribeTimeout) {
		return errors.New("timed out unsubscribing bus topics")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe bus topics: %w", err)
	}
	h.logger.Info().Msg("Service unregistered from bus")
	return nil
}

func (h *Handle) subscribe(topic string, callback mqttLib.MessageHandler) error {
	token := h.client.Subscribe(topic, h.qos, callback)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("timed out subscribing %s", topic)
	}
	return token.Error()
}

func (h *Handle) sendCancel(c *call) {
	data, err := json.Marshal(Request{Token: c.token, Sender: h.name})
	if err != nil {
		return
	}
	h.client.Publish(path.Join(c.service, CancelMethod), h.qos, false, data)
	h.logger.Debug().Str("token", c.token).Msg("Bus call cancelled")
}

// ParseURI splits a luna://service/method URI.
func ParseURI(uri string) (service, method string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "luna" && u.Scheme != "palm" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
	method = strings.Trim(u.Path, "/")
	if !validServiceName(u.Host) || method == "" || strings.ContainsAny(method, "+#") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return u.Host, method, nil
}

func validServiceName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/+#\x00 \t\n")
}

func failureReply(text string) []byte {
	data, _ := json.Marshal(map[string]any{
		"returnValue": false,
		"errorCode":   -1,
		"errorText":   text,
	})
	return data
}

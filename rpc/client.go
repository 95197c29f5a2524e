package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// PushHandler receives push events for one subscription. Handlers for a given
// subscription are invoked sequentially in arrival order.
type PushHandler func(push Push)

// Unsubscribe terminates a subscription. Safe to call more than once and
// safe to call after the underlying connection has failed.
type Unsubscribe func()

// Caller is the command/service RPC surface the sync layer talks to
type Caller interface {
	// Call sends a command to a service and waits for its reply
	Call(ctx context.Context, command, service string, args map[string]any) (Response, error)
	// Subscribe registers a push handler for a subscribe command. It returns
	// once the subscription is established on the transport.
	Subscribe(ctx context.Context, command, service string, handler PushHandler) (Unsubscribe, error)
}

// ClientConfig configures the NATS-backed RPC client
type ClientConfig struct {
	NatsURL          string
	Origin           string // Service name this client identifies as
	ClientID         uint64
	CallTimeout      time.Duration
	CompressionLevel int
	CompressionMin   int
}

// Client implements Caller over NATS request/reply and push subjects
type Client struct {
	nc          *nats.Conn
	codec       *Codec
	origin      string
	clientID    uint64
	callTimeout time.Duration
}

// Connect establishes the NATS connection and builds the wire codec
func Connect(config ClientConfig) (*Client, error) {
	if config.NatsURL == "" {
		return nil, fmt.Errorf("nats URL is required")
	}
	if config.Origin == "" {
		return nil, fmt.Errorf("origin service name is required")
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(config.NatsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Name(config.Origin),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	codec, err := NewCodec(config.CompressionLevel, config.CompressionMin)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	log.Info().
		Str("url", config.NatsURL).
		Str("origin", config.Origin).
		Msg("Connected to daemon transport")

	return &Client{
		nc:          nc,
		codec:       codec,
		origin:      config.Origin,
		clientID:    config.ClientID,
		callTimeout: config.CallTimeout,
	}, nil
}

// Call sends a command and waits for the service's reply
func (c *Client) Call(ctx context.Context, command, service string, args map[string]any) (Response, error) {
	req := Request{
		Command:  command,
		Service:  service,
		Origin:   c.origin,
		ClientID: c.clientID,
		Args:     args,
	}

	data, err := c.codec.Encode(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	callCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	msg, err := c.nc.RequestWithContext(callCtx, CallSubject(service, command), data)
	if err != nil {
		return Response{}, fmt.Errorf("call %s.%s failed: %w", service, command, err)
	}

	var resp Response
	if err := c.codec.Decode(msg.Data, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.Error != "" {
		return resp, &DaemonError{Command: command, Service: service, Message: resp.Error}
	}

	return resp, nil
}

// Subscribe opens a push subscription for a subscribe command. NATS invokes
// the message callback sequentially per subscription, which preserves push
// arrival order. The returned Unsubscribe is idempotent.
func (c *Client) Subscribe(ctx context.Context, command, service string, handler PushHandler) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subject := PushSubject(service, command)
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var push Push
		if err := c.codec.Decode(msg.Data, &push); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("Dropping undecodable push")
			return
		}
		handler(push)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s.%s failed: %w", service, command, err)
	}

	// Flush so the server has seen the subscription before we report it
	// established. This is the acknowledgment the sync layer awaits.
	if err := c.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s.%s not acknowledged: %w", service, command, err)
	}

	return onceUnsubscribe(subject, sub.Unsubscribe), nil
}

// onceUnsubscribe wraps a transport unsubscribe so repeated calls are no-ops
// and teardown never fails. Unsubscribe on a closed connection returns an
// error we have no use for.
func onceUnsubscribe(subject string, fn func() error) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := fn(); err != nil {
				log.Debug().Err(err).Str("subject", subject).Msg("Unsubscribe after connection loss")
			}
		})
	}
}

// Register announces this client's origin service to the daemon so pushes
// for it are routed here
func (c *Client) Register(ctx context.Context, daemonService string) error {
	_, err := c.Call(ctx, "register_service", daemonService, map[string]any{
		"service": c.origin,
	})
	if err != nil {
		return fmt.Errorf("failed to register service %s: %w", c.origin, err)
	}
	return nil
}

// Close tears down the connection and codec
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
	if c.codec != nil {
		c.codec.Close()
	}
}

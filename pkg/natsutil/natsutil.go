// Package natsutil provides typed NATS publish, reply and request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// ErrorHeader carries a handler-side failure back to the requester.
const ErrorHeader = "Ragqa-Error"

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// encode builds a JSON message with the trace context of ctx in its headers.
func encode[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// decode unmarshals msg and returns the context carried in its headers.
func decode[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return ctx, v, fmt.Errorf("natsutil: decode %s: %w", msg.Subject, err)
	}
	return ctx, v, nil
}

// Publish serializes v as JSON and publishes to the given subject.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := encode(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Reply serves request/reply on subject within queue group queue. handler
// errors and undecodable requests are answered with an empty body and the
// error text in ErrorHeader.
func Reply[Req, Resp any](nc *nats.Conn, subject, queue string, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		ctx, req, err := decode[Req](msg)
		var resp Resp
		if err == nil {
			resp, err = handler(ctx, req)
		}
		if perr := nc.PublishMsg(respond(ctx, msg.Reply, resp, err)); perr != nil {
			slog.Warn("nats reply not sent", "subject", subject, "err", perr)
		}
	})
}

// respond builds the reply for a handler result. A response that cannot be
// encoded is answered as a handler error.
func respond[Resp any](ctx context.Context, subject string, resp Resp, herr error) *nats.Msg {
	if herr == nil {
		msg, err := encode(ctx, subject, resp)
		if err == nil {
			return msg
		}
		slog.Warn("nats reply not encodable", "subject", subject, "err", err)
		herr = err
	}
	msg := &nats.Msg{Subject: subject, Header: nats.Header{}}
	msg.Header.Set(ErrorHeader, herr.Error())
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg
}

// Request sends a JSON-encoded request and decodes the response. The
// context deadline bounds the wait.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := encode(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	return parseReply[Resp](resp)
}

func parseReply[Resp any](resp *nats.Msg) (Resp, error) {
	var zero Resp
	if resp.Header != nil {
		if e := resp.Header.Get(ErrorHeader); e != "" {
			return zero, errors.New(e)
		}
	}
	_, v, err := decode[Resp](resp)
	if err != nil {
		return zero, err
	}
	return v, nil
}

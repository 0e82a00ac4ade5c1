package natsutil

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestEncodeDecodePropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg, err := encode(ctx, "ragqa.test", testMsg{Name: "a", Value: 1})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Header.Get("traceparent") == "" {
		t.Fatal("traceparent not injected")
	}

	gotCtx, got, err := decode[testMsg](msg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "a" || got.Value != 1 {
		t.Fatalf("got %+v", got)
	}
	if trace.SpanContextFromContext(gotCtx).TraceID() != traceID {
		t.Fatal("trace id not propagated")
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, _, err := decode[testMsg](&nats.Msg{Subject: "x", Data: []byte("{")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRespondAndParseReply(t *testing.T) {
	ok := respond(context.Background(), "_INBOX.1", testMsg{Name: "ok"}, nil)
	got, err := parseReply[testMsg](ok)
	if err != nil || got.Name != "ok" {
		t.Fatalf("got %+v, %v", got, err)
	}

	failed := respond(context.Background(), "_INBOX.2", testMsg{}, errors.New("no such file"))
	if _, err := parseReply[testMsg](failed); err == nil || err.Error() != "no such file" {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestRespondUnencodableResponse(t *testing.T) {
	msg := respond(context.Background(), "_INBOX.3", map[string]any{"ch": make(chan int)}, nil)
	if msg.Subject != "_INBOX.3" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	_, err := parseReply[map[string]any](msg)
	if err == nil || !strings.Contains(err.Error(), "encode") {
		t.Fatalf("expected encode error in reply, got %v", err)
	}
}

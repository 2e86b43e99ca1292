// Package broker wraps the NATS JetStream client with the small surface
// the transfer commands need: publish with attributes, destructive
// consume, and non-destructive browse. Connection security options are
// passed through to the client untouched.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/shovelmq/shovel/cfg"
)

// CorrelationHeader carries the message's correlation id
const CorrelationHeader = "Shovel-Correlation-Id"

// Message is one browsed or consumed queue message
type Message struct {
	Subject       string
	Data          []byte
	CorrelationID *string
	Headers       map[string]string
}

// Session is one broker connection, reused across all records of a run
type Session struct {
	nc           *nats.Conn
	js           jetstream.JetStream
	opTimeout    time.Duration
	streamMaxAge time.Duration
}

// Connect establishes the broker connection. A refused connection is a
// run-fatal resource error; there is no background retry for a CLI run.
func Connect(conf cfg.BrokerConfiguration, clientName string) (*Session, error) {
	opts := []nats.Option{
		nats.Name(clientName),
		nats.Timeout(time.Duration(conf.ConnectTimeoutMS) * time.Millisecond),
	}
	if conf.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(conf.CredsFile))
	}
	if conf.Username != "" {
		opts = append(opts, nats.UserInfo(conf.Username, conf.Password))
	}
	if conf.TLSCert != "" && conf.TLSKey != "" {
		opts = append(opts, nats.ClientCert(conf.TLSCert, conf.TLSKey))
	}
	if conf.TLSCA != "" {
		opts = append(opts, nats.RootCAs(conf.TLSCA))
	}

	nc, err := nats.Connect(conf.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker at %s: %w", conf.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Debug().Str("url", conf.URL).Str("client", clientName).Msg("Connected to broker")

	return &Session{
		nc:           nc,
		js:           js,
		opTimeout:    time.Duration(conf.OperationTimeoutMS) * time.Millisecond,
		streamMaxAge: time.Duration(conf.StreamMaxAgeHours) * time.Hour,
	}, nil
}

// EnsureStream creates or updates the stream backing a subject
func (s *Session) EnsureStream(ctx context.Context, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	streamName := sanitizeStreamName(subject)
	_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    s.streamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}
	return nil
}

// Publish sends one message to a subject. The correlation id and any
// additional attributes travel as headers.
func (s *Session) Publish(ctx context.Context, subject string, payload []byte, correlationID *string, attrs map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	header := nats.Header{}
	if correlationID != nil {
		header.Set(CorrelationHeader, *correlationID)
	}
	for k, v := range attrs {
		header.Set(k, v)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  header,
	}

	if _, err := s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Browse reads up to maxCount messages without consuming them, using an
// ephemeral ordered consumer. Returns fewer messages when the wait
// expires first.
func (s *Session) Browse(ctx context.Context, subject string, maxCount int, wait time.Duration) ([]Message, error) {
	stream, err := s.js.Stream(ctx, sanitizeStreamName(subject))
	if err != nil {
		return nil, fmt.Errorf("failed to open stream for %s: %w", subject, err)
	}

	cons, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browse consumer for %s: %w", subject, err)
	}

	return fetch(cons, maxCount, wait, false)
}

// Consume destructively reads up to maxCount messages, acknowledging each
func (s *Session) Consume(ctx context.Context, subject string, maxCount int, wait time.Duration) ([]Message, error) {
	streamName := sanitizeStreamName(subject)
	cons, err := s.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       streamName + "_shovel",
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", subject, err)
	}

	return fetch(cons, maxCount, wait, true)
}

func fetch(cons jetstream.Consumer, maxCount int, wait time.Duration, ack bool) ([]Message, error) {
	batch, err := cons.Fetch(maxCount, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []Message
	for msg := range batch.Messages() {
		messages = append(messages, toMessage(msg))
		if ack {
			if err := msg.Ack(); err != nil {
				return messages, fmt.Errorf("failed to acknowledge message: %w", err)
			}
		}
	}
	if err := batch.Error(); err != nil {
		return messages, fmt.Errorf("message fetch interrupted: %w", err)
	}
	return messages, nil
}

func toMessage(msg jetstream.Msg) Message {
	out := Message{
		Subject: msg.Subject(),
		Data:    msg.Data(),
		Headers: map[string]string{},
	}
	for k, vals := range msg.Headers() {
		if len(vals) > 0 {
			out.Headers[k] = vals[0]
		}
	}
	if corr, ok := out.Headers[CorrelationHeader]; ok {
		out.CorrelationID = &corr
		delete(out.Headers, CorrelationHeader)
	}
	return out
}

// Close releases the broker connection
func (s *Session) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// sanitizeStreamName converts a subject to a valid JetStream stream name.
// Stream names can't contain "." so it becomes "_".
func sanitizeStreamName(subject string) string {
	result := make([]byte, len(subject))
	for i, c := range subject {
		if c == '.' {
			result[i] = '_'
		} else {
			result[i] = byte(c)
		}
	}
	return string(result)
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"benchcore/pkg/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	kind       string
	durable    bool
	declareErr error
	publishErr error
	published  []published
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name)
	f.kind = kind
	f.durable = durable
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestPublisherDeclaresDurableTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(&fakeConn{}, ch, "")
	require.NoError(t, err)
	require.Equal(t, DefaultExchange, p.Exchange())
	require.Equal(t, []string{DefaultExchange}, ch.declared)
	require.Equal(t, amqp.ExchangeTopic, ch.kind)
	require.True(t, ch.durable)

	_, err = newPublisher(&fakeConn{}, &fakeChannel{declareErr: errors.New("access refused")}, "lab")
	require.ErrorContains(t, err, "declare exchange lab")
}

func TestPublishRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(&fakeConn{}, ch, "lab.events")
	require.NoError(t, err)

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	event := domain.Event{
		Type:       domain.EventReleaseConfirmed,
		Entity:     domain.EntityRelease,
		EntityID:   "rel-1",
		OccurredAt: at,
		Payload:    map[string]string{"status": "confirmed"},
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	require.Equal(t, "lab.events", got.exchange)
	require.Equal(t, "release.confirmed", got.key)
	require.Equal(t, "application/json", got.msg.ContentType)
	require.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	require.Equal(t, at, got.msg.Timestamp)
	require.Equal(t, "rel-1", got.msg.Headers["entity_id"])
	require.NotEmpty(t, got.msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	require.Equal(t, "release.confirmed", decoded["type"])
	require.Equal(t, "rel-1", decoded["entity_id"])
}

func TestPublishWrapsChannelErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newPublisher(&fakeConn{}, ch, "")
	require.NoError(t, err)
	err = p.Publish(context.Background(), domain.Event{Type: domain.EventTaskCreated})
	require.ErrorContains(t, err, "publish task.created")
}

func TestCloseClosesChannelAndConnection(t *testing.T) {
	ch := &fakeChannel{}
	conn := &fakeConn{}
	p, err := newPublisher(conn, ch, "")
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.True(t, ch.closed)
	require.True(t, conn.closed)
}

package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acked++
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	return nil
}

func delivery(ack *fakeAck, body string, redelivered bool) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, Body: []byte(body), Redelivered: redelivered}
}

func TestHandleDeliveryAcks(t *testing.T) {
	ack := &fakeAck{}
	var got ReportJob
	handleDelivery(context.Background(), delivery(ack, `{"reportId":"rpt_1"}`, false), func(ctx context.Context, job ReportJob) error {
		got = job
		return nil
	}, zap.NewNop())

	assert.Equal(t, "rpt_1", got.ReportID)
	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, 0, ack.nacked)
}

func TestHandleDeliveryDropsMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{}`} {
		ack := &fakeAck{}
		called := false
		handleDelivery(context.Background(), delivery(ack, body, false), func(ctx context.Context, job ReportJob) error {
			called = true
			return nil
		}, zap.NewNop())

		assert.False(t, called, body)
		assert.Equal(t, 1, ack.nacked, body)
		assert.False(t, ack.requeue, body)
	}
}

func TestHandleDeliveryRequeuesOnce(t *testing.T) {
	failing := func(ctx context.Context, job ReportJob) error { return errors.New("db down") }

	ack := &fakeAck{}
	handleDelivery(context.Background(), delivery(ack, `{"reportId":"rpt_1"}`, false), failing, zap.NewNop())
	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeue)

	ack = &fakeAck{}
	handleDelivery(context.Background(), delivery(ack, `{"reportId":"rpt_1"}`, true), failing, zap.NewNop())
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
}

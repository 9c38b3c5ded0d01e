package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-log-bus/contract/errors"
	"github.com/next-trace/scg-log-bus/contract/logbus"
)

// channel maps logbus.Channel onto the session's current AMQP channel.
type channel struct{ s *session }

// Ensure channel implements the channel contract.
var _ logbus.Channel = (*channel)(nil)

// DeclareQueue declares name durable, non-exclusive and not auto-deleted.
// Declaring an existing queue with the same properties is a no-op on the broker.
func (c *channel) DeclareQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := c.s.current()
	if err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare %q: %w", name, errors.Join(berr.ErrDeclareFailed, err))
	}

	c.s.remember(name)

	return nil
}

// Publish sends m on the default exchange with m.RoutingKey as routing key.
func (c *channel) Publish(ctx context.Context, m logbus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := c.s.current()
	if err != nil {
		return err
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", m.RoutingKey, false, false, publishing(m))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish %q: %w", m.RoutingKey, errors.Join(berr.ErrPublishFailed, err))
	}

	// nil unless the channel is in confirm mode
	if dc == nil {
		return nil
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}

	if !acked {
		return fmt.Errorf("rabbitmq publish %q: nacked by broker: %w", m.RoutingKey, berr.ErrPublishFailed)
	}

	return nil
}

func publishing(m logbus.Message) amqp.Publishing {
	mode := amqp.Transient
	if m.Persistent {
		mode = amqp.Persistent
	}

	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return amqp.Publishing{
		DeliveryMode:    mode,
		Headers:         h,
		ContentType:     m.ContentType,
		ContentEncoding: m.ContentEncoding,
		MessageId:       m.MessageID,
		AppId:           m.AppID,
		Timestamp:       m.Timestamp,
		Body:            m.Body,
	}
}

package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client wraps one AMQP connection and channel for the notification queues.
type Client struct {
	conn *amqp.Connection
	chn  *amqp.Channel
}

func NewClient(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	chn, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel")
	}
	return &Client{
		conn: conn,
		chn:  chn,
	}, nil
}

// Close cleans up the channel before the connection.
func (c *Client) Close() error {
	if err := c.chn.Close(); err != nil {
		return err
	}
	if err := c.conn.Close(); err != nil {
		return err
	}
	return nil
}

// CreateQueue declares a durable queue to hold notification jobs.
func (c *Client) CreateQueue(queueName string) error {
	_, err := c.chn.QueueDeclare(
		queueName, // name of queue
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	return err
}

// Publish sends a message to a specific queue.
func (c *Client) Publish(ctx context.Context, queueName string, body []byte) error {
	return c.chn.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume starts listening on a queue and returns a read-only delivery channel.
func (c *Client) Consume(queueName string) (<-chan amqp.Delivery, error) {
	msgs, err := c.chn.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

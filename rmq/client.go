package rmq

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"phonorule.dev/machine/logger"
)

type Config struct {
	Host                    string `envconfig:"MACHINE_RMQ_HOST" required:"true"`
	Port                    string `envconfig:"MACHINE_RMQ_PORT" required:"true"`
	Username                string `envconfig:"MACHINE_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"MACHINE_RMQ_PASSWORD" required:"true"`
	Exchange                string `envconfig:"MACHINE_RMQ_EXCHANGE" default:"machine-default-exchange"`
	MaxParallelRequestCount int    `envconfig:"MACHINE_RMQ_MAX_PARALLEL_REQUESTS" default:"5"`
	RewriteTaskQueue        string `envconfig:"MACHINE_RMQ_REWRITE_QUEUE" required:"true"`
	NotifyQueue             string `envconfig:"MACHINE_RMQ_NOTIFY_QUEUE" required:"true"`
}

// URL is the amqp address described by the config.
func (config Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s", config.Username, config.Password, config.Host, config.Port)
}

type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	log            *zerolog.Logger
}

func NewClient() (*Client, error) {
	log := logger.NewLogger("RMQ client")
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}

	respConn, respChannel, err := setup(config.URL())
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	reqConn, reqChannel, err := setup(config.URL())
	if err != nil {
		_ = respConn.Close()
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	deliveries, err := consume(reqChannel, config)
	if err != nil {
		_ = respConn.Close()
		_ = reqConn.Close()
		return nil, err
	}
	log.Info().Str("queue", config.RewriteTaskQueue).Msg("Consuming rewrite tasks")

	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChannel.NotifyClose(make(chan *amqp.Error)),
		RespChanErrors: respChannel.NotifyClose(make(chan *amqp.Error)),
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		log:            &log,
	}, nil
}

func consume(ch *amqp.Channel, config Config) (<-chan amqp.Delivery, error) {
	q, err := ch.QueueDeclarePassive(
		config.RewriteTaskQueue, // name
		true,                    // durable
		false,                   // delete when unused
		false,                   // exclusive
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		return nil, err
	}
	if err = ch.QueueBind(q.Name, q.Name, config.Exchange, false, nil); err != nil {
		return nil, err
	}
	if err = ch.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume deliveries: %w", err)
	}
	return deliveries, nil
}

// Notify publishes msg to the queue that follows rewrite tasks.
func (c *Client) Notify(msg amqp.Publishing) error {
	c.log.Debug().Str("queue", c.config.NotifyQueue).Msg("Publishing notification")
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.NotifyQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	_ = c.reqConn.Close()
	_ = c.respConn.Close()
}

func setup(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

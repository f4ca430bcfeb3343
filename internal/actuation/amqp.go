package actuation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultReconnectBackoff は接続に失敗してから次に再接続を試みるまでの既定の間隔です
const DefaultReconnectBackoff = 30 * time.Second

// ErrBrokerUnavailable は再接続の待機中に送信しようとした場合のエラーです
var ErrBrokerUnavailable = errors.New("amqp broker unavailable")

// amqpChannel は AMQPGateway が使うチャネルの操作です
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	IsClosed() bool
	Close() error
}

type amqpConnection interface {
	IsClosed() bool
	Close() error
}

type dialFunc func(url, exchange string, timeout time.Duration) (amqpConnection, amqpChannel, error)

// AMQPGateway は RabbitMQ の topic exchange に指示を送る Gateway です
// 確認コードは部屋ごとの durable キューにも最新の1件だけ残るため、後から接続した表示端末も受け取れます
type AMQPGateway struct {
	url      string
	exchange string
	timeout  time.Duration
	backoff  time.Duration
	dial     dialFunc
	now      func() time.Time

	mu         sync.Mutex
	conn       amqpConnection
	ch         amqpChannel
	codeQueues map[int64]bool
	retryAt    time.Time
}

// AMQPOption は AMQPGateway の設定を変更します
type AMQPOption func(*AMQPGateway)

// WithReconnectBackoff は接続失敗後に再接続を控える時間を変更します
func WithReconnectBackoff(d time.Duration) AMQPOption {
	return func(g *AMQPGateway) {
		if d >= 0 {
			g.backoff = d
		}
	}
}

// NewAMQPGateway は RabbitMQ に接続し、exchange を宣言します
func NewAMQPGateway(url, exchange string, timeout time.Duration, opts ...AMQPOption) (*AMQPGateway, error) {
	g := newAMQPGateway(url, exchange, timeout, dialRabbitMQ)
	for _, opt := range opts {
		opt(g)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.connectLocked(); err != nil {
		return nil, err
	}
	return g, nil
}

func newAMQPGateway(url, exchange string, timeout time.Duration, dial dialFunc) *AMQPGateway {
	return &AMQPGateway{
		url:      url,
		exchange: exchange,
		timeout:  timeout,
		backoff:  DefaultReconnectBackoff,
		dial:     dial,
		now:      time.Now,
	}
}

// CodeQueueName は部屋の最新の確認コードを保持するキューの名前です
func CodeQueueName(roomID int64) string {
	return RoutingKey(roomID, DeviceCode)
}

// PublishRoomCode は部屋の確認コードを送ります
func (g *AMQPGateway) PublishRoomCode(ctx context.Context, roomID int64, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnectedLocked(); err != nil {
		return err
	}
	if err := g.declareCodeQueueLocked(roomID); err != nil {
		return err
	}
	return g.publishLocked(ctx, RoutingKey(roomID, DeviceCode), code, amqp.Persistent)
}

// PublishDoor はドアの施錠・解錠を指示します
func (g *AMQPGateway) PublishDoor(ctx context.Context, roomID int64, cmd DoorCommand) error {
	return g.publish(ctx, RoutingKey(roomID, DeviceDoor), string(cmd))
}

// PublishLight は照明の点灯・消灯を指示します
func (g *AMQPGateway) PublishLight(ctx context.Context, roomID int64, cmd PowerCommand) error {
	return g.publish(ctx, RoutingKey(roomID, DeviceLight), string(cmd))
}

// PublishHVAC は空調の運転・停止を指示します
func (g *AMQPGateway) PublishHVAC(ctx context.Context, roomID int64, cmd PowerCommand) error {
	return g.publish(ctx, RoutingKey(roomID, DeviceHVAC), string(cmd))
}

// Close はチャネルと接続を閉じます
func (g *AMQPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ch != nil {
		_ = g.ch.Close()
		g.ch = nil
	}
	if g.conn != nil {
		err := g.conn.Close()
		g.conn = nil
		return err
	}
	return nil
}

func (g *AMQPGateway) publish(ctx context.Context, key, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureConnectedLocked(); err != nil {
		return err
	}
	return g.publishLocked(ctx, key, body, amqp.Transient)
}

func (g *AMQPGateway) publishLocked(ctx context.Context, key, body string, mode uint8) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.ch.PublishWithContext(ctx, g.exchange, key, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: mode,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         []byte(body),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// declareCodeQueueLocked は部屋の確認コード用キューを接続ごとに1度だけ宣言します
// x-max-length が1のため、古いコードは新しいコードで押し出されます
func (g *AMQPGateway) declareCodeQueueLocked(roomID int64) error {
	if g.codeQueues[roomID] {
		return nil
	}

	name := CodeQueueName(roomID)
	if _, err := g.ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-max-length": int32(1),
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	if err := g.ch.QueueBind(name, RoutingKey(roomID, DeviceCode), g.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", name, err)
	}
	g.codeQueues[roomID] = true
	return nil
}

// ensureConnectedLocked は接続が切れていれば再接続します
// 失敗した場合は backoff の間、接続を試みずに ErrBrokerUnavailable を返します
func (g *AMQPGateway) ensureConnectedLocked() error {
	if g.conn != nil && !g.conn.IsClosed() && g.ch != nil && !g.ch.IsClosed() {
		return nil
	}
	if g.now().Before(g.retryAt) {
		return fmt.Errorf("%w: next reconnect attempt at %s", ErrBrokerUnavailable, g.retryAt.Format(time.RFC3339))
	}

	log.Printf("AMQP connection is not open, attempting to reconnect to exchange %s", g.exchange)
	if err := g.connectLocked(); err != nil {
		g.retryAt = g.now().Add(g.backoff)
		log.Printf("Reconnect to exchange %s failed, next attempt after %s: %v", g.exchange, g.backoff, err)
		return err
	}
	g.retryAt = time.Time{}
	return nil
}

func (g *AMQPGateway) connectLocked() error {
	if g.ch != nil {
		_ = g.ch.Close()
	}
	if g.conn != nil {
		_ = g.conn.Close()
	}
	g.conn, g.ch = nil, nil
	g.codeQueues = make(map[int64]bool)

	conn, ch, err := g.dial(g.url, g.exchange, g.timeout)
	if err != nil {
		return err
	}
	g.conn, g.ch = conn, ch
	return nil
}

func dialRabbitMQ(url, exchange string, timeout time.Duration) (amqpConnection, amqpChannel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

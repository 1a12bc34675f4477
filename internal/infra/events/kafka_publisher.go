package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrBufferFull = errors.New("event buffer full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// リクエストを待たせないよう、送信はRunのループで行う。
type KafkaPublisher struct {
	w     messageWriter
	inbox chan kafka.Message
	log   *zap.Logger
	now   func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string, buf int, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, buf, log)
}

func newKafkaPublisher(w messageWriter, buf int, log *zap.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 256
	}
	return &KafkaPublisher{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		log:   log,
		now:   time.Now,
	}
}

// バッファが一杯なら捨ててErrBufferFull（呼び出し側はログだけ）
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, orderID int64, payload any) error {
	env, err := NewEnvelope(eventType, orderID, payload, p.now())
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   PartitionKey(orderID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// ctxが終わったら残りを流してからWriterを閉じる
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return p.w.Close()
		case m := <-p.inbox:
			p.write(m)
		}
	}
}

func (p *KafkaPublisher) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Warn("kafka write failed",
			zap.String("key", string(m.Key)),
			zap.Error(err),
		)
	}
}

// Kafka未設定のとき用
type Nop struct{}

func (Nop) Publish(context.Context, string, int64, any) error { return nil }

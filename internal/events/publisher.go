// Package events публикует события жизненного цикла сигналов в Kafka.
package events

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"sourcetrader/internal/config"
	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Типы событий
const (
	EventSignalOpened = "signal.opened"
	EventSignalClosed = "signal.closed"
)

const writeTimeout = 5 * time.Second

// MessageWriter - часть kafka.Writer, которой пользуется публикатор
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SignalEvent - тело сообщения в топике
type SignalEvent struct {
	Type        string     `json:"type"`
	SignalID    int64      `json:"signal_id"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"`
	Price       float64    `json:"price"`
	Time        time.Time  `json:"time"`
	RefOpenID   *int64     `json:"ref_open_id,omitempty"`
	PnlPct      *float64   `json:"pnl_pct,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ExternalRef *int64     `json:"ext_ref,omitempty"`
	EmittedAt   time.Time  `json:"emitted_at"`
}

// NewSignalEvent строит событие по сохраненному сигналу
func NewSignalEvent(s *models.Signal, now time.Time) SignalEvent {
	eventType := EventSignalOpened
	if s.Side.IsClose() {
		eventType = EventSignalClosed
	}
	return SignalEvent{
		Type:        eventType,
		SignalID:    s.ID,
		Symbol:      s.Symbol,
		Side:        string(s.Side),
		Price:       s.Price,
		Time:        s.Time,
		RefOpenID:   s.RefOpenID,
		PnlPct:      s.PnlPct,
		ClosedAt:    s.ClosedAt,
		ExternalRef: s.ExternalRef,
		EmittedAt:   now,
	}
}

// KafkaPublisher пишет события с ключом по символу,
// чтобы события одного инструмента попадали в одну партицию
type KafkaPublisher struct {
	writer MessageWriter
	logger *utils.Logger
	now    func() time.Time
}

// NewKafkaWriter создает writer по конфигурации
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}
}

// NewKafkaPublisher создает публикатор поверх writer
func NewKafkaPublisher(writer MessageWriter, logger *utils.Logger) *KafkaPublisher {
	if logger == nil {
		logger = utils.L()
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger.WithComponent("events"),
		now:    time.Now,
	}
}

// PublishSignal отправляет событие; ошибка возвращается вызывающему для логирования
func (p *KafkaPublisher) PublishSignal(ctx context.Context, s *models.Signal) error {
	event := NewSignalEvent(s, p.now().UTC())

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(s.Symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("event published",
		utils.String("type", event.Type),
		utils.SignalID(s.ID),
		utils.Symbol(s.Symbol),
	)
	return nil
}

// Close сбрасывает буфер writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

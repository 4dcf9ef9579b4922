// Package audit реализует журнал событий безопасности: отказы авторизации,
// подозрительные запросы и административные действия, меняющие состояние.
// События публикуются во внешнюю систему наблюдения и дублируются в лог;
// сбой публикации логируется и никогда не валит запрос.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-gateway/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/billing-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/billing-gateway/internal/metrics"
)

// Kind вид события аудита.
type Kind string

const (
	// KindUnauthorizedAccess отказ аутентификации или авторизации.
	KindUnauthorizedAccess Kind = "unauthorized-access"
	// KindSuspiciousRequest запрос, попавший под наблюдение (попытки оплаты,
	// отклонённые лимитером запросы). Запись, а не блокировка.
	KindSuspiciousRequest Kind = "suspicious-request"
	// KindAdminAction административное действие, меняющее состояние.
	KindAdminAction Kind = "admin-action"
)

// Event одна запись журнала аудита, только на запись со стороны ядра.
type Event struct {
	Kind        Kind              `json:"kind"`
	Fingerprint string            `json:"fingerprint"`
	Path        string            `json:"path"`
	Detail      map[string]string `json:"detail,omitempty"`
	At          time.Time         `json:"at"`
}

// Sink принимает события аудита. Реализации не должны возвращать ошибку
// наружу через обработчик — эмиссия всегда best-effort.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink пишет события аудита в структурированный лог.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink создает LogSink поверх переданного логгера.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit записывает событие в лог.
func (s *LogSink) Emit(_ context.Context, e Event) {
	s.log.Info("audit event",
		slog.String("kind", string(e.Kind)),
		slog.String("fingerprint", e.Fingerprint),
		slog.String("path", e.Path),
		slog.Any("detail", e.Detail),
		slog.Time("at", e.At),
	)
}

// AMQPSink публикует события аудита в очередь RabbitMQ для внешнего потребителя.
type AMQPSink struct {
	ch  *amqp.Channel
	log *slog.Logger
}

// NewAMQPSink создает AMQPSink поверх открытого канала.
func NewAMQPSink(ch *amqp.Channel, log *slog.Logger) *AMQPSink {
	return &AMQPSink{ch: ch, log: log}
}

// Emit публикует событие; ошибка публикации только логируется.
func (s *AMQPSink) Emit(_ context.Context, e Event) {
	const op = "audit.AMQPSink.Emit"
	if err := rabbitmq.PublishMessage(s.ch, rabbitmq.AuditExchange, rabbitmq.AuditRoutingKey, e); err != nil {
		s.log.Error("failed to publish audit event", sl.Op(op), sl.Err(err))
	}
}

// Fanout рассылает событие в несколько приёмников.
type Fanout []Sink

// Emit передает событие каждому приёмнику по очереди.
func (f Fanout) Emit(ctx context.Context, e Event) {
	for _, s := range f {
		s.Emit(ctx, e)
	}
}

// Metered считает эмитированные события по виду и передает их дальше.
// Оборачивается вокруг итогового приёмника один раз, чтобы событие,
// разосланное в несколько приёмников, учитывалось единожды.
type Metered struct {
	next Sink
}

// NewMetered создает Metered поверх переданного приёмника.
func NewMetered(next Sink) *Metered {
	return &Metered{next: next}
}

// Emit инкрементирует счётчик и передает событие дальше.
func (m *Metered) Emit(ctx context.Context, e Event) {
	metrics.AuditEvents.WithLabelValues(string(e.Kind)).Inc()
	m.next.Emit(ctx, e)
}

// NewEvent собирает событие с текущим временем.
func NewEvent(kind Kind, fingerprint, path string, detail map[string]string) Event {
	return Event{
		Kind:        kind,
		Fingerprint: fingerprint,
		Path:        path,
		Detail:      detail,
		At:          time.Now().UTC(),
	}
}

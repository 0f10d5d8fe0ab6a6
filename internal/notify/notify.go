// Package notify доставляет доменные события после коммита: в NATS и в лог.
// Ошибки доставки логируются и считаются, но никогда не возвращаются в ядро.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"procurement/internal/workflow"
)

const DefaultSubjectPrefix = "procurement.events"

// Conn: часть *nats.Conn, которой пользуется публикатор.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Observer получает исход каждой доставки (метрики).
type Observer interface {
	ObserveNotification(sink string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveNotification(string, error) {}

// Subject строит тему NATS вида procurement.events.user.12.
func Subject(prefix string, a workflow.Audience) string {
	return prefix + "." + strings.ToLower(string(a.Kind)) + "." + a.ID
}

type NATS struct {
	conn   Conn
	prefix string
	log    *zap.Logger
	obs    Observer
}

func NewNATS(conn Conn, log *zap.Logger, obs Observer) *NATS {
	if obs == nil {
		obs = nopObserver{}
	}
	return &NATS{conn: conn, prefix: DefaultSubjectPrefix, log: log, obs: obs}
}

func (n *NATS) Publish(ctx context.Context, ev workflow.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.fail(ev, err)
		return
	}
	msg := nats.NewMsg(Subject(n.prefix, ev.Audience))
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", ev.ID)
	msg.Header.Set("Event-Name", ev.Name)
	if err := ctx.Err(); err != nil {
		n.fail(ev, err)
		return
	}
	if err := n.conn.PublishMsg(msg); err != nil {
		n.fail(ev, err)
		return
	}
	n.obs.ObserveNotification("nats", nil)
}

func (n *NATS) fail(ev workflow.Event, err error) {
	n.obs.ObserveNotification("nats", err)
	n.log.Warn("failed to publish event",
		zap.String("event", ev.Name),
		zap.String("event_id", ev.ID),
		zap.Stringer("audience", ev.Audience),
		zap.Error(err))
}

// Log пишет каждое событие в журнал; используется, когда NATS не настроен.
type Log struct {
	log *zap.Logger
	obs Observer
}

func NewLog(log *zap.Logger, obs Observer) *Log {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Log{log: log, obs: obs}
}

func (l *Log) Publish(_ context.Context, ev workflow.Event) {
	l.log.Info("event",
		zap.String("event", ev.Name),
		zap.String("event_id", ev.ID),
		zap.Stringer("audience", ev.Audience),
		zap.Any("payload", ev.Payload))
	l.obs.ObserveNotification("log", nil)
}

// Multi рассылает событие всем получателям по очереди.
type Multi []workflow.Notifier

func (m Multi) Publish(ctx context.Context, ev workflow.Event) {
	for _, n := range m {
		n.Publish(ctx, ev)
	}
}

// Connect подключается к NATS с бесконечными переподключениями.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("procurement-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
}

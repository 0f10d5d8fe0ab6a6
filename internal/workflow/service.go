package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Recorder принимает результат каждой мутирующей операции (метрики).
type Recorder interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}

// Service объединяет менеджеры ТЗ, закупок, приглашений и предложений.
type Service struct {
	store    Store
	notifier Notifier
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time
	token    func() (string, error)
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock подменяет источник времени (тесты сроков подачи).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithTokenSource(fn func() (string, error)) Option { return func(s *Service) { s.token = fn } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: nopNotifier{},
		recorder: nopRecorder{},
		log:      zap.NewNop(),
		now:      time.Now,
		token:    NewInviteToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run выполняет fn в одной транзакции и публикует накопленные события
// только после успешного коммита.
func (s *Service) run(ctx context.Context, op string, actor Actor, fn func(r Repository, ev *events) error) error {
	start := time.Now()
	var evs events
	err := s.store.Tx(ctx, func(r Repository) error {
		evs = evs[:0]
		return fn(r, &evs)
	})
	s.recorder.ObserveOperation(op, err, time.Since(start))
	if err != nil {
		s.log.Debug("operation rejected",
			zap.String("op", op),
			zap.Int64("actor_id", actor.ID),
			zap.String("role", string(actor.Role)),
			zap.Error(err))
		return err
	}

	s.log.Info("operation committed",
		zap.String("op", op),
		zap.Int64("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.Int("events", len(evs)))

	pubCtx := context.WithoutCancel(ctx)
	at := s.now()
	for _, e := range evs {
		e.OccurredAt = at
		s.notifier.Publish(pubCtx, e)
	}
	return nil
}

// NewInviteToken возвращает 256 бит из crypto/rand в hex.
func NewInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// RecordStore сохраняет записи биллинга. inserted=false, если запись
// за ту же дату и того же вида уже существует.
type RecordStore interface {
	CreateBillingRecord(ctx context.Context, rec models.BillingRecord) (inserted bool, err error)
}

// Worker превращает запросы из очереди в записи биллинга в статусе pending.
type Worker struct {
	store RecordStore
	log   *slog.Logger
}

// NewWorker создаёт Worker.
func NewWorker(store RecordStore, log *slog.Logger) *Worker {
	return &Worker{
		store: store,
		log:   log,
	}
}

// Run потребляет очередь до отмены ctx.
func (w *Worker) Run(ctx context.Context, ch *amqp.Channel, queue string, concurrency int) error {
	return rabbitmq.ConsumerMessage(ctx, ch, queue, concurrency, w.log, w.Handle)
}

// Handle обрабатывает одно сообщение. Некорректные сообщения отбрасываются
// через rabbitmq.ErrDrop, ошибки хранилища возвращают сообщение в очередь.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	const op = "billing.Handle"

	var req models.BillingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(rabbitmq.ErrDrop, err))
	}
	rec, err := recordFor(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(rabbitmq.ErrDrop, err))
	}

	log := w.log.With(
		slog.String("op", op),
		sl.SubID(req.SubscriptionID),
		slog.String("kind", string(req.Kind)),
		slog.Time("billing_date", req.BillingDate),
	)

	inserted, err := w.store.CreateBillingRecord(ctx, rec)
	if err != nil {
		log.Error("failed to create billing record", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !inserted {
		log.Info("billing record already exists, skipping")
		return nil
	}
	log.Info("billing record created", slog.String("amount", rec.Amount.String()))
	return nil
}

func recordFor(req models.BillingRequest) (models.BillingRecord, error) {
	if req.SubscriptionID == uuid.Nil {
		return models.BillingRecord{}, errors.New("subscription id is required")
	}
	if req.Kind != models.BillingKindCharge && req.Kind != models.BillingKindRefund {
		return models.BillingRecord{}, fmt.Errorf("unknown billing kind %q", req.Kind)
	}
	if req.Amount.IsNegative() {
		return models.BillingRecord{}, errors.New("amount must not be negative")
	}
	if req.BillingDate.IsZero() {
		return models.BillingRecord{}, errors.New("billing date is required")
	}
	return models.BillingRecord{
		SubscriptionID:  req.SubscriptionID,
		Kind:            req.Kind,
		Amount:          req.Amount.Round(2),
		BillingDate:     req.BillingDate,
		NextBillingDate: req.NextBillingDate,
		Status:          models.BillingStatusPending,
		Note:            req.Note,
	}, nil
}

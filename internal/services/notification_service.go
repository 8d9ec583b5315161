package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tiketi/models"
	"tiketi/monitoring"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TicketLoader is the slice of the data layer the notification worker needs.
type TicketLoader interface {
	FindTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	FindEventByID(ctx context.Context, id string) (*models.Event, error)
}

// NotificationConfig bounds the queue behaviour.
type NotificationConfig struct {
	QueueKey      string
	DeadLetterKey string
	MaxAttempts   int
	PollTimeout   time.Duration
}

// NotificationService queues ticket notifications in redis and delivers
// them from a background worker. Jobs that keep failing land on the
// dead-letter list for manual inspection.
type NotificationService struct {
	redis   *redis.Client
	store   TicketLoader
	qr      *QRService
	mailer  *Mailer
	sms     *SMSService
	monitor *monitoring.Monitor
	cfg     NotificationConfig
}

func NewNotificationService(
	redisClient *redis.Client,
	store TicketLoader,
	qr *QRService,
	mailer *Mailer,
	sms *SMSService,
	monitor *monitoring.Monitor,
	cfg NotificationConfig,
) *NotificationService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	return &NotificationService{
		redis:   redisClient,
		store:   store,
		qr:      qr,
		mailer:  mailer,
		sms:     sms,
		monitor: monitor,
		cfg:     cfg,
	}
}

// Enqueue pushes one job onto the pending queue.
func (s *NotificationService) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}

	if err := s.redis.LPush(ctx, s.cfg.QueueKey, string(payload)).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// EnqueueTicketNotifications queues the email confirmation and, when the
// buyer left a phone number, the SMS confirmation for one issued ticket.
func (s *NotificationService) EnqueueTicketNotifications(ctx context.Context, ticket *models.Ticket) error {
	if err := s.Enqueue(ctx, &models.NotificationJob{
		Type:     models.NotifyTicketEmail,
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
	}); err != nil {
		return err
	}

	if ticket.BuyerPhone != "" {
		if err := s.Enqueue(ctx, &models.NotificationJob{
			Type:     models.NotifyTicketSMS,
			TicketID: ticket.ID,
			EventID:  ticket.EventID,
			Phone:    ticket.BuyerPhone,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Run consumes the queue until the context is cancelled. Start it in its
// own goroutine.
func (s *NotificationService) Run(ctx context.Context) {
	slog.Info("notification worker started", "queue", s.cfg.QueueKey)

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification worker stopped")
			return
		default:
		}

		result, err := s.redis.BRPop(ctx, s.cfg.PollTimeout, s.cfg.QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			slog.Error("pop notification job", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.NotificationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			slog.Error("decode notification job", "error", err)
			continue
		}

		s.process(ctx, &job)
	}
}

func (s *NotificationService) process(ctx context.Context, job *models.NotificationJob) {
	err := s.deliver(ctx, job)
	if err == nil {
		if s.monitor != nil {
			s.monitor.TrackNotification(job.Type, "delivered")
		}
		return
	}

	job.Attempts++
	slog.Warn("notification delivery failed",
		"job", job.ID, "type", job.Type, "attempts", job.Attempts, "error", err)

	if job.Attempts >= s.cfg.MaxAttempts {
		s.deadLetter(ctx, job)
		return
	}

	payload, merr := json.Marshal(job)
	if merr != nil {
		slog.Error("marshal retry job", "job", job.ID, "error", merr)
		return
	}
	if rerr := s.redis.LPush(ctx, s.cfg.QueueKey, string(payload)).Err(); rerr != nil {
		slog.Error("requeue notification", "job", job.ID, "error", rerr)
	}
	if s.monitor != nil {
		s.monitor.TrackNotification(job.Type, "retried")
	}
}

func (s *NotificationService) deadLetter(ctx context.Context, job *models.NotificationJob) {
	payload, err := json.Marshal(job)
	if err != nil {
		slog.Error("marshal dead letter", "job", job.ID, "error", err)
		return
	}
	if err := s.redis.LPush(ctx, s.cfg.DeadLetterKey, string(payload)).Err(); err != nil {
		slog.Error("push dead letter", "job", job.ID, "error", err)
		return
	}
	if s.monitor != nil {
		s.monitor.TrackNotification(job.Type, "dead_letter")
	}
	slog.Error("notification moved to dead letter", "job", job.ID, "type", job.Type)
}

func (s *NotificationService) deliver(ctx context.Context, job *models.NotificationJob) error {
	ticket, err := s.store.FindTicketByID(ctx, job.TicketID)
	if err != nil {
		return fmt.Errorf("load ticket %s: %w", job.TicketID, err)
	}
	event, err := s.store.FindEventByID(ctx, ticket.EventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", ticket.EventID, err)
	}

	switch job.Type {
	case models.NotifyTicketEmail:
		qrPNG, err := s.qr.GeneratePNG(ticket.ID, ticket.EventID, ticket.CreatedAt)
		if err != nil {
			return err
		}
		pdfBytes, err := BuildTicketPDF(ticket, event, qrPNG)
		if err != nil {
			return err
		}
		return s.mailer.SendTicket(ctx, ticket.BuyerEmail, ticket.BuyerName, event.Title, pdfBytes, ticket.QRCodeURL)

	case models.NotifyTicketSMS:
		return s.sms.SendTicketConfirmation(ctx, job.Phone, event.Title, ticket.ID)

	default:
		return fmt.Errorf("unknown notification type %q", job.Type)
	}
}

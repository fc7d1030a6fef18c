package services

import (
	"context"
	"fmt"
	"time"

	"fleetfix/internal/models"
	"fleetfix/pkg/notify"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationService queues outbound notifications. Enqueueing is the
// bounded mutation the action executor performs; delivery happens in a
// background dispatch loop so a slow or dead receiver never stalls a rule
// firing.
type NotificationService struct {
	db      *gorm.DB
	logger  *logrus.Logger
	webhook *notify.Client
	breaker *DeliveryBreaker
	hub     *RealtimeHub
}

func NewNotificationService(db *gorm.DB, logger *logrus.Logger, webhook *notify.Client) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{
		db:      db,
		logger:  logger,
		webhook: webhook,
		breaker: NewDeliveryBreaker(nil),
	}
}

// SetHub 注入实时推送（可选）
func (s *NotificationService) SetHub(hub *RealtimeHub) {
	s.hub = hub
}

// SetBreakerConfig 覆盖 webhook 投递熔断参数（config notify.breaker_*）
func (s *NotificationService) SetBreakerConfig(cfg *DeliveryBreakerConfig) {
	s.breaker = NewDeliveryBreaker(cfg)
}

// BreakerStats 投递熔断快照
func (s *NotificationService) BreakerStats() map[string]interface{} {
	return s.breaker.Stats()
}

// Enqueue persists a pending notification. Independently atomic.
func (s *NotificationService) Enqueue(ctx context.Context, n *models.Notification) error {
	if n.Kind == "" {
		return fmt.Errorf("notification kind required")
	}
	n.Status = "pending"
	n.CreatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	if s.hub != nil {
		s.hub.BroadcastNotification(n)
	}
	return nil
}

// ListNotifications 按接收人查询通知
func (s *NotificationService) ListNotifications(ctx context.Context, recipientID *uint, status string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if recipientID != nil {
		query = query.Where("recipient_id = ?", *recipientID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []models.Notification
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// DispatchPending delivers queued notifications and records the outcome on
// each row. Returns how many were attempted.
func (s *NotificationService) DispatchPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	var pending []models.Notification
	if err := s.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("id ASC").
		Limit(limit).
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("failed to load pending notifications: %w", err)
	}

	for i := range pending {
		n := &pending[i]
		err := s.deliver(ctx, n)
		now := time.Now()
		updates := map[string]interface{}{"sent_at": &now}
		if err != nil {
			updates["status"] = "failed"
			updates["error"] = err.Error()
			s.logger.Warnf("notification %d delivery failed: %v", n.ID, err)
		} else {
			updates["status"] = "sent"
		}
		if uerr := s.db.WithContext(ctx).Model(n).Updates(updates).Error; uerr != nil {
			s.logger.Errorf("failed to record notification %d outcome: %v", n.ID, uerr)
		}
	}
	return len(pending), nil
}

// StartDispatcher 通知派发后台循环
func (s *NotificationService) StartDispatcher(ctx context.Context, interval time.Duration) {
	s.logger.Info("Starting notification dispatcher")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Notification dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := s.DispatchPending(ctx, 50); err != nil {
				s.logger.Errorf("notification dispatch error: %v", err)
			}
		}
	}
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification) error {
	if s.webhook == nil {
		// No outbound channel configured; the in-app row itself is the
		// delivery.
		return nil
	}
	if !s.breaker.Allow() {
		return fmt.Errorf("webhook circuit open, delivery deferred")
	}
	var number string
	var wo models.WorkOrder
	if err := s.db.WithContext(ctx).Select("number").First(&wo, n.WorkOrderID).Error; err == nil {
		number = wo.Number
	}
	err := s.webhook.Send(ctx, n.WebhookURL, &notify.Payload{
		WorkOrderID:     n.WorkOrderID,
		WorkOrderNumber: number,
		Kind:            n.Kind,
		Title:           n.Title,
		Body:            n.Body,
		RecipientID:     n.RecipientID,
		SentAt:          time.Now().Format(time.RFC3339),
	})
	if err != nil {
		s.breaker.OnFailure()
		return err
	}
	s.breaker.OnSuccess()
	return nil
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/constants"
	"github.com/hupay-bridge/internal/logger"
	"github.com/hupay-bridge/internal/models"
	"github.com/hupay-bridge/internal/payment/xunhu"
	"github.com/hupay-bridge/internal/reconcile"
	"github.com/hupay-bridge/internal/repository"
)

// CallbackInput 回调请求
type CallbackInput struct {
	Form       map[string][]string
	ClientIP   string
	ReceivedAt time.Time
}

// AckDecision 回调处理结果；Body 始终为网关要求的确认串
type AckDecision struct {
	Body    string
	Outcome string
	OrderID string
	State   string
	Applied bool
	Settled bool
}

// CallbackServiceOptions 回调服务依赖
type CallbackServiceOptions struct {
	AppID      string
	AppSecret  string
	MaxSkew    time.Duration
	Reconciler *reconcile.Reconciler
	Replay     reconcile.ReplayGuard
	AuditRepo  repository.NotificationLogRepository
}

// CallbackService 处理网关异步回调
type CallbackService struct {
	appID      string
	appSecret  string
	maxSkew    time.Duration
	reconciler *reconcile.Reconciler
	replay     reconcile.ReplayGuard
	auditRepo  repository.NotificationLogRepository
	now        func() time.Time
}

// NewCallbackService 创建回调服务
func NewCallbackService(opts CallbackServiceOptions) *CallbackService {
	return &CallbackService{
		appID:      strings.TrimSpace(opts.AppID),
		appSecret:  opts.AppSecret,
		maxSkew:    opts.MaxSkew,
		reconciler: opts.Reconciler,
		replay:     opts.Replay,
		auditRepo:  opts.AuditRepo,
		now:        time.Now,
	}
}

// Handle 校验并应用回调；无论结果如何都返回确认串，避免网关重复推送
func (s *CallbackService) Handle(ctx context.Context, input CallbackInput) AckDecision {
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	decision := AckDecision{Body: constants.GatewayCallbackAck}
	audit := &models.NotificationLog{
		ClientIP:   strings.TrimSpace(input.ClientIP),
		ReceivedAt: receivedAt.UTC(),
	}

	notification, err := xunhu.ParseNotification(input.Form)
	if notification != nil {
		audit.OrderID = notification.OrderID
		audit.GatewayOrderID = notification.GatewayOrderID
		audit.TransactionID = notification.TransactionID
		audit.Nonce = notification.Nonce
		audit.StatusCode = notification.StatusCode
		audit.Payload = models.StringMap(logger.TruncateFields(notification.MaskedFields()))
		decision.OrderID = notification.OrderID
	}
	log := paymentLogger("order_id", decision.OrderID, "client_ip", audit.ClientIP)
	log.Infow("callback_received", "status", audit.StatusCode, "payload", audit.Payload)

	finish := func(outcome string, cause error) AckDecision {
		decision.Outcome = outcome
		audit.Outcome = outcome
		audit.Applied = decision.Applied
		audit.State = decision.State
		if cause != nil {
			audit.ErrorMessage = logger.Truncate(cause.Error())
		}
		s.writeAudit(audit)
		return decision
	}

	if err != nil {
		log.Warnw("callback_parse_failed", "error", err)
		return finish(constants.NotificationOutcomeParseFailed, err)
	}
	if err := xunhu.VerifyNotification(notification, s.appSecret); err != nil {
		log.Warnw("callback_signature_invalid", "error", err)
		return finish(constants.NotificationOutcomeSignatureInvalid, err)
	}
	if notification.AppID != s.appID {
		log.Warnw("callback_appid_mismatch", "appid", notification.AppID)
		return finish(constants.NotificationOutcomeAppIDMismatch, errors.New("appid mismatch"))
	}
	if !s.fresh(notification.Timestamp, receivedAt) {
		log.Warnw("callback_stale", "sent_at", notification.Timestamp, "max_skew", s.maxSkew)
		return finish(constants.NotificationOutcomeStale, errors.New("callback timestamp outside allowed skew"))
	}
	state, err := xunhu.MapStatus(notification.StatusCode)
	if err != nil {
		log.Warnw("callback_status_unknown", "status", notification.StatusCode)
		return finish(constants.NotificationOutcomeStatusUnknown, err)
	}
	decision.State = state

	if s.replay != nil {
		fresh, err := s.replay.Consume(ctx, notification.OrderID, notification.Nonce)
		if err != nil {
			log.Warnw("callback_replay_guard_failed", "error", err)
		} else if !fresh {
			log.Infow("callback_replayed", "nonce", notification.Nonce)
			return finish(constants.NotificationOutcomeReplayed, nil)
		}
	}

	transition, err := s.reconciler.Observe(ctx, reconcile.PutInput{
		OrderID:        notification.OrderID,
		State:          state,
		Source:         constants.SourceChannelWebhook,
		GatewayOrderID: notification.GatewayOrderID,
		RawPayload:     notification.MaskedFields(),
		ObservedAt:     receivedAt,
	})
	decision.Applied = transition.Applied
	decision.Settled = transition.Settled() && err == nil
	if transition.Current != nil {
		decision.State = transition.Current.State
	}
	if err != nil {
		outcome := constants.NotificationOutcomeApplyFailed
		if errors.Is(err, reconcile.ErrHookFailed) {
			outcome = constants.NotificationOutcomeSettlementFailed
			log.Errorw("callback_settlement_failed", "state", decision.State, "error", err)
		} else {
			log.Errorw("callback_apply_failed", "state", state, "error", err)
		}
		if s.replay != nil {
			if releaseErr := s.replay.Release(ctx, notification.OrderID, notification.Nonce); releaseErr != nil {
				log.Warnw("callback_replay_release_failed", "error", releaseErr)
			}
		}
		return finish(outcome, err)
	}
	log.Infow("callback_verified",
		"state", decision.State,
		"applied", decision.Applied,
		"settled", decision.Settled,
		"total_fee", notification.TotalFee.StringFixed(2),
	)
	return finish(constants.NotificationOutcomeVerified, nil)
}

func (s *CallbackService) fresh(sentAt, receivedAt time.Time) bool {
	if s.maxSkew <= 0 {
		return true
	}
	if sentAt.IsZero() {
		return false
	}
	diff := receivedAt.Sub(sentAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.maxSkew
}

func (s *CallbackService) writeAudit(entry *models.NotificationLog) {
	if s.auditRepo == nil || entry == nil {
		return
	}
	if err := s.auditRepo.Create(entry); err != nil {
		logger.Warnw("callback_audit_write_failed",
			"order_id", entry.OrderID,
			"outcome", entry.Outcome,
			"error", err,
		)
	}
}

package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/config"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

// StatusPoller queries the gateway for payments whose callback has not arrived.
type StatusPoller struct {
	payments domainRepo.PaymentRepository
	ledger   *PaymentLedger
	cfg      config.PollerConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewStatusPoller(payments domainRepo.PaymentRepository, ledger *PaymentLedger, cfg config.PollerConfig, logger *zap.Logger) *StatusPoller {
	return &StatusPoller{
		payments: payments,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls every interval until ctx is cancelled.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("Status poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("stale_after", p.cfg.StaleAfter))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Status poller stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("Status poll failed", zap.Error(err))
			}
		}
	}
}

// PollOnce queries one batch of stale pending payments and returns how many were
// resolved. Gateway errors are logged per payment and do not stop the batch. Every
// queried payment is stamped so unresolved ones rotate to the back of the queue.
func (p *StatusPoller) PollOnce(ctx context.Context) (int, error) {
	stale, err := p.payments.ListStalePending(ctx, p.now().Add(-p.cfg.StaleAfter), p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, payment := range stale {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		if err := p.payments.MarkPolled(ctx, payment.ID, p.now()); err != nil {
			return resolved, err
		}

		result, err := p.ledger.Query(ctx, *payment.CheckoutRequestID)
		if err != nil {
			// The gateway answers with an error while the payer has not responded yet.
			level := p.logger.Warn
			if paymentErrors.IsType(err, paymentErrors.ErrTypeGateway) {
				level = p.logger.Debug
			}
			level("Pending payment not resolved",
				zap.String("payment_id", payment.ID.String()),
				zap.String("checkout_request_id", *payment.CheckoutRequestID),
				zap.Error(err))
			continue
		}
		if result.Resolved {
			resolved++
		}
	}

	if len(stale) > 0 {
		p.logger.Info("Status poll finished",
			zap.Int("checked", len(stale)),
			zap.Int("resolved", resolved))
	}
	return resolved, nil
}

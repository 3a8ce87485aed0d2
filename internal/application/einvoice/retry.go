package einvoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/logger"
)

// Scheduling limits of the cron retry: only recent failures, bounded batch.
const (
	RetryWindow   = 7 * 24 * time.Hour
	RetryBatchCap = 50
)

// BatchResult tallies one batch or retry run.
type BatchResult struct {
	SuccessCount int
	ErrorCount   int
	Processed    int
}

// orderSubmitter is the slice of the orchestrator the scheduler needs.
type orderSubmitter interface {
	SubmitOrder(ctx context.Context, orderID string) (*entity.Order, error)
}

// RetryService drives the batch submission and retry operations. All three
// entry points share the same per-record contract: each record's outcome is
// persisted immediately, so an interruption mid-run never rolls back records
// already processed.
type RetryService struct {
	orderRepo repository.OrderRepository
	submitter orderSubmitter
	log       *logger.Logger
}

// NewRetryService builds the service around the pipeline orchestrator.
func NewRetryService(orderRepo repository.OrderRepository, submitter orderSubmitter, log *logger.Logger) *RetryService {
	return &RetryService{orderRepo: orderRepo, submitter: submitter, log: log}
}

// BatchSubmitPending processes every queued record sequentially and tallies
// the outcomes. Individual failures are counted, never propagated.
func (s *RetryService) BatchSubmitPending(ctx context.Context) (BatchResult, error) {
	queued, err := s.orderRepo.ListQueued()
	if err != nil {
		return BatchResult{}, fmt.Errorf("einvoice: list queued: %w", err)
	}

	var result BatchResult
	for _, order := range queued {
		result.Processed++
		if s.submitOne(ctx, order.ID) {
			result.SuccessCount++
		} else {
			result.ErrorCount++
		}
	}

	s.log.Info().
		Int("processed", result.Processed).
		Int("success", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Msg("batch submission finished")
	return result, nil
}

// CronRetryFailed re-runs error records created within the trailing window,
// oldest first, capped per run. Each record is reset to queued with its error
// text cleared, resubmitted, and its outcome persisted before the next record
// starts.
func (s *RetryService) CronRetryFailed(ctx context.Context) (BatchResult, error) {
	since := time.Now().Add(-RetryWindow)
	failed, err := s.orderRepo.ListFailedSince(since, RetryBatchCap)
	if err != nil {
		return BatchResult{}, fmt.Errorf("einvoice: list failed: %w", err)
	}

	var result BatchResult
	for _, order := range failed {
		result.Processed++
		if err := s.requeue(order); err != nil {
			s.log.Error().Err(err).Str("order_id", order.ID).Msg("could not requeue failed record")
			result.ErrorCount++
			continue
		}
		if s.submitOne(ctx, order.ID) {
			result.SuccessCount++
		} else {
			result.ErrorCount++
		}
	}

	s.log.Info().
		Int("processed", result.Processed).
		Int("success", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Msg("cron retry finished")
	return result, nil
}

// ManualRetry follows the same per-record contract as the cron but surfaces
// failures to the caller instead of swallowing them. Later records still run
// when an earlier one fails.
func (s *RetryService) ManualRetry(ctx context.Context, orderIDs []string) (BatchResult, error) {
	var result BatchResult
	var errs []error
	for _, id := range orderIDs {
		result.Processed++
		order, err := s.orderRepo.GetByID(id)
		if err != nil || order == nil {
			result.ErrorCount++
			errs = append(errs, fmt.Errorf("order %s not found", id))
			continue
		}
		if err := s.requeue(order); err != nil {
			result.ErrorCount++
			errs = append(errs, fmt.Errorf("order %s: requeue: %w", id, err))
			continue
		}
		refreshed, err := s.submitter.SubmitOrder(ctx, id)
		if err != nil {
			result.ErrorCount++
			errs = append(errs, err)
			continue
		}
		if refreshed != nil && refreshed.ZATCAStatus == entity.ZATCAStatusError {
			result.ErrorCount++
			errs = append(errs, fmt.Errorf("order %s: %s", id, refreshed.ZATCAErrorMessage))
			continue
		}
		result.SuccessCount++
	}
	return result, errors.Join(errs...)
}

// requeue resets an error record for another attempt: status queued, prior
// error text cleared, persisted immediately.
func (s *RetryService) requeue(order *entity.Order) error {
	if order.ZATCAStatus == entity.ZATCAStatusLegacy {
		return fmt.Errorf("legacy records are never retried")
	}
	order.ZATCAStatus = entity.ZATCAStatusQueued
	order.ZATCAErrorMessage = ""
	order.UpdatedAt = time.Now()
	return s.orderRepo.UpdateZATCA(order)
}

// submitOne runs the pipeline for one record and reports whether it ended
// submitted. Errors are logged, counted by the caller, and never propagated.
func (s *RetryService) submitOne(ctx context.Context, orderID string) bool {
	order, err := s.submitter.SubmitOrder(ctx, orderID)
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("submission attempt failed")
		return false
	}
	return order != nil && order.ZATCAStatus == entity.ZATCAStatusSubmitted
}

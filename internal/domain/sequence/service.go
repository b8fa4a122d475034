package sequence

import (
	"context"
	"fmt"
	"time"

	"numera/internal/core/apperror"
	"numera/internal/core/docnum"
	"numera/internal/core/tx"
	"numera/internal/domain/audit"
	"numera/pkg/logger"
)

const (
	// maxAttempts bounds the retry loop on allocation conflicts.
	maxAttempts = 3

	// retryBaseDelay is multiplied by the attempt number (linear backoff).
	retryBaseDelay = 50 * time.Millisecond
)

// staleDailyThreshold flags daily counters with no activity in Health.
const staleDailyThreshold = 24 * time.Hour

// Service allocates document sequence values.
// Each attempt runs in one serializable transaction; a conflict aborts the
// attempt and the whole operation is retried after a short backoff.
type Service struct {
	store Store
	txm   tx.Manager
	audit audit.Logger // best-effort gap reporting; may be nil
}

// NewService creates a sequence allocator.
func NewService(store Store, txm tx.Manager, auditLogger audit.Logger) *Service {
	return &Service{
		store: store,
		txm:   txm,
		audit: auditLogger,
	}
}

// Allocate returns the next sequence value for a document type.
// refDate selects the reset period; pass time.Now() for current-period
// allocation. Guarantees: for a fixed (type, period) key no two successful
// calls return the same value, and values form a contiguous run barring
// administrative intervention.
//
// Each attempt must own its serializable transaction: a conflict aborts
// that transaction and the retry starts a fresh one. Callers must not
// invoke Allocate inside an open transaction, where attempts would join
// the caller's transaction and die with it on the first conflict.
func (s *Service) Allocate(ctx context.Context, docType docnum.DocType, refDate time.Time) (int64, error) {
	cfg, err := docnum.ConfigFor(docType)
	if err != nil {
		return 0, err
	}
	key := docnum.PeriodKeyFor(cfg, refDate)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allocated, previous, err := s.tryAllocate(ctx, docType, key)
		if err == nil {
			s.reportGap(ctx, docType, key, previous, allocated)
			return allocated, nil
		}

		if !isRetryableConflict(err) {
			return 0, err
		}

		lastErr = err
		logger.Debug(ctx, "sequence allocation conflict, retrying",
			"type", docType, "key", key.String(), "attempt", attempt)

		if attempt < maxAttempts {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return 0, err
			}
		}
	}

	return 0, apperror.NewSequenceConflict(string(docType)).WithCause(lastErr)
}

// tryAllocate performs one allocation attempt in a serializable transaction.
// Returns the allocated value and the counter value seen before the bump.
func (s *Service) tryAllocate(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey) (allocated, previous int64, err error) {
	err = s.txm.RunSerializable(ctx, func(ctx context.Context) error {
		counter, err := s.store.Find(ctx, docType, key)
		if err != nil {
			return err
		}

		if counter == nil {
			if err := s.store.Insert(ctx, NewCounter(docType, key)); err != nil {
				return err
			}
			allocated, previous = 1, 0
			return nil
		}

		previous = counter.LastNumber
		value, err := s.store.Increment(ctx, counter.ID, counter.LastNumber)
		if err != nil {
			return err
		}
		allocated = value
		return nil
	})
	return allocated, previous, err
}

// reportGap emits a warning audit entry when the allocated value is not
// exactly previous+1, indicating a missed or administratively skipped number.
// Strictly advisory: a failure here never blocks or fails the allocation.
func (s *Service) reportGap(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey, previous, allocated int64) {
	if allocated == previous+1 {
		return
	}

	logger.Warn(ctx, "sequence gap detected",
		"type", docType, "key", key.String(),
		"previous", previous, "allocated", allocated)

	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		Action:      audit.ActionSequenceGap,
		Entity:      "SequenceCounter",
		EntityID:    fmt.Sprintf("%s/%s", docType, key.String()),
		Description: fmt.Sprintf("Sequence gap detected for %s: previous=%d, next=%d", docType, previous, allocated),
		Severity:    audit.SeverityWarning,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		logger.Warn(ctx, "gap audit write failed", "type", docType, "error", err)
	}
}

// PreviewNext renders the number the next allocation would produce, without
// mutating state. Purely informational: it can race with a real allocation
// and must never be used for actual issuance.
func (s *Service) PreviewNext(ctx context.Context, docType docnum.DocType, refDate time.Time) (string, error) {
	next, err := s.Current(ctx, docType, refDate)
	if err != nil {
		return "", err
	}
	return docnum.Format(docType, refDate, next+1)
}

// Current returns the last allocated value for a type's current period,
// or 0 when no counter row exists yet.
func (s *Service) Current(ctx context.Context, docType docnum.DocType, refDate time.Time) (int64, error) {
	cfg, err := docnum.ConfigFor(docType)
	if err != nil {
		return 0, err
	}

	counter, err := s.store.Find(ctx, docType, docnum.PeriodKeyFor(cfg, refDate))
	if err != nil {
		return 0, err
	}
	if counter == nil {
		return 0, nil
	}
	return counter.LastNumber, nil
}

// SetNext forces a counter to an absolute value. Migration use only; normal
// allocation never moves counters backwards.
func (s *Service) SetNext(ctx context.Context, docType docnum.DocType, refDate time.Time, value int64) error {
	cfg, err := docnum.ConfigFor(docType)
	if err != nil {
		return err
	}
	if value < 0 {
		return apperror.NewValidation("sequence value must not be negative").
			WithDetail("value", value)
	}
	return s.store.Set(ctx, docType, docnum.PeriodKeyFor(cfg, refDate), value)
}

// TypeHealth summarizes one document type's counter state.
type TypeHealth struct {
	Current     int64
	LastUpdated *time.Time
}

// HealthReport is the result of a sequence health sweep.
type HealthReport struct {
	Healthy bool
	Issues  []string
	Summary map[docnum.DocType]TypeHealth
}

// Health inspects every configured type's current-period counter and flags
// daily counters with no activity for over 24 hours.
func (s *Service) Health(ctx context.Context, now time.Time) (*HealthReport, error) {
	report := &HealthReport{
		Summary: make(map[docnum.DocType]TypeHealth, len(docnum.Types())),
	}

	for _, docType := range docnum.Types() {
		cfg, err := docnum.ConfigFor(docType)
		if err != nil {
			return nil, err
		}

		counter, err := s.store.Find(ctx, docType, docnum.PeriodKeyFor(cfg, now))
		if err != nil {
			return nil, err
		}

		health := TypeHealth{}
		if counter != nil {
			health.Current = counter.LastNumber
			updated := counter.UpdatedAt
			health.LastUpdated = &updated

			if cfg.Reset == docnum.ResetDaily && now.Sub(updated) > staleDailyThreshold {
				report.Issues = append(report.Issues,
					fmt.Sprintf("%s: sequence unchanged for over 24 hours", docType))
			}
		}
		report.Summary[docType] = health
	}

	report.Healthy = len(report.Issues) == 0
	return report, nil
}

// isRetryableConflict reports whether an allocation attempt failed on
// contention that a retry can resolve.
func isRetryableConflict(err error) bool {
	return apperror.IsSequenceConflict(err) || apperror.IsConcurrentModification(err)
}

// sleepBackoff waits retryBaseDelay*attempt, honoring context cancellation.
func sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(retryBaseDelay * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

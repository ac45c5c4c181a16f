// Package policy holds document checks configured per deployment: the
// frozen accounting period and expression rules run before save and submit.
package policy

import (
	"context"
	"time"

	"txcalc/internal/core/apperror"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
	"txcalc/pkg/logger"
)

const dateLayout = "2006-01-02"

// PeriodPolicy decides whether documents dated in a period may change.
type PeriodPolicy interface {
	// CanSave checks if a draft with the given date can be saved
	CanSave(ctx context.Context, docDate time.Time) error

	// CanSubmit checks if a document with the given date can be submitted
	CanSubmit(ctx context.Context, docDate time.Time) error

	// ClosedUntil returns the last frozen day; zero when nothing is frozen
	ClosedUntil() time.Time
}

// StrictPolicy forbids saving and submitting documents dated on or before
// the frozen date.
type StrictPolicy struct {
	closedUntil time.Time
}

// NewStrictPolicy creates a policy freezing everything up to closedUntil.
func NewStrictPolicy(closedUntil time.Time) *StrictPolicy {
	return &StrictPolicy{closedUntil: closedUntil}
}

func (p *StrictPolicy) CanSave(ctx context.Context, docDate time.Time) error {
	return p.CanSubmit(ctx, docDate)
}

func (p *StrictPolicy) CanSubmit(_ context.Context, docDate time.Time) error {
	if !docDate.After(p.closedUntil) {
		return apperror.NewPeriodClosed(p.closedUntil.Format(dateLayout))
	}
	return nil
}

func (p *StrictPolicy) ClosedUntil() time.Time {
	return p.closedUntil
}

// FlexiblePolicy lets drafts in the frozen period be saved, blocks their
// submission and warns about backdated submissions.
type FlexiblePolicy struct {
	warningThreshold time.Duration // Warn if older than this
	closedUntil      time.Time     // Hard limit for submit
	now              func() time.Time
}

// NewFlexiblePolicy creates a policy with soft warnings.
func NewFlexiblePolicy(warningThreshold time.Duration, closedUntil time.Time) *FlexiblePolicy {
	return &FlexiblePolicy{
		warningThreshold: warningThreshold,
		closedUntil:      closedUntil,
		now:              time.Now,
	}
}

func (p *FlexiblePolicy) CanSave(context.Context, time.Time) error {
	return nil
}

func (p *FlexiblePolicy) CanSubmit(ctx context.Context, docDate time.Time) error {
	if !p.closedUntil.IsZero() && !docDate.After(p.closedUntil) {
		return apperror.NewPeriodClosed(p.closedUntil.Format(dateLayout))
	}
	if p.IsBackdated(docDate) {
		logger.Warn(ctx, "backdated submission", "date", docDate.Format(dateLayout))
	}
	return nil
}

func (p *FlexiblePolicy) ClosedUntil() time.Time {
	return p.closedUntil
}

// IsBackdated reports whether docDate is older than the warning threshold.
func (p *FlexiblePolicy) IsBackdated(docDate time.Time) bool {
	if p.warningThreshold == 0 {
		return false
	}
	return p.now().Sub(docDate) > p.warningThreshold
}

// OpenPolicy allows everything.
type OpenPolicy struct{}

func (OpenPolicy) CanSave(context.Context, time.Time) error   { return nil }
func (OpenPolicy) CanSubmit(context.Context, time.Time) error { return nil }
func (OpenPolicy) ClosedUntil() time.Time                     { return time.Time{} }

// RegisterPeriod checks p before drafts are saved and before documents are
// submitted. Undated documents and saves of submitted documents pass.
func RegisterPeriod(hooks *domain.DocumentHooks, p PeriodPolicy) {
	hooks.OnBeforeSave(func(ctx context.Context, doc *transaction.Document) error {
		if doc.IsSubmitted() {
			return nil
		}
		date, ok, err := documentDate(doc)
		if err != nil || !ok {
			return err
		}
		return p.CanSave(ctx, date)
	})
	hooks.OnBeforeSubmit(func(ctx context.Context, doc *transaction.Document) error {
		date, ok, err := documentDate(doc)
		if err != nil || !ok {
			return err
		}
		return p.CanSubmit(ctx, date)
	})
}

func documentDate(doc *transaction.Document) (time.Time, bool, error) {
	s := doc.Date()
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false, apperror.NewValidation("invalid document date").
			WithDetail("date", s)
	}
	return t, true, nil
}

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
)

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestStrictPolicy(t *testing.T) {
	ctx := context.Background()
	p := NewStrictPolicy(date("2026-06-30"))

	tests := []struct {
		date    string
		allowed bool
	}{
		{"2026-05-01", false},
		{"2026-06-30", false},
		{"2026-07-01", true},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			err := p.CanSubmit(ctx, date(tt.date))
			if tt.allowed {
				assert.NoError(t, err)
				assert.NoError(t, p.CanSave(ctx, date(tt.date)))
				return
			}
			assert.True(t, apperror.HasCode(err, apperror.CodePeriodClosed))
			assert.ErrorContains(t, err, "Accounts are frozen up to 2026-06-30.")
			assert.Error(t, p.CanSave(ctx, date(tt.date)))
		})
	}
}

func TestFlexiblePolicy(t *testing.T) {
	ctx := context.Background()
	p := NewFlexiblePolicy(30*24*time.Hour, date("2026-06-30"))
	p.now = func() time.Time { return date("2026-10-18") }

	assert.NoError(t, p.CanSave(ctx, date("2026-01-01")), "drafts may be saved in a frozen period")
	assert.True(t, apperror.HasCode(p.CanSubmit(ctx, date("2026-06-01")), apperror.CodePeriodClosed))
	assert.NoError(t, p.CanSubmit(ctx, date("2026-08-01")), "backdated submissions only warn")

	assert.True(t, p.IsBackdated(date("2026-08-01")))
	assert.False(t, p.IsBackdated(date("2026-10-10")))
	assert.False(t, NewFlexiblePolicy(0, time.Time{}).IsBackdated(date("2000-01-01")))
}

func TestOpenPolicy(t *testing.T) {
	var p OpenPolicy
	assert.NoError(t, p.CanSubmit(context.Background(), date("1999-12-31")))
	assert.True(t, p.ClosedUntil().IsZero())
}

func TestRegisterPeriod(t *testing.T) {
	ctx := context.Background()
	hooks := domain.NewDocumentHooks()
	RegisterPeriod(hooks, NewStrictPolicy(date("2026-06-30")))

	doc := &transaction.Document{Document: entity.NewDocument("Sales Invoice", "Acme")}

	doc.PostingDate = "2026-06-15"
	err := hooks.Run(ctx, domain.BeforeSave, doc)
	assert.True(t, apperror.HasCode(err, apperror.CodePeriodClosed))
	err = hooks.Run(ctx, domain.BeforeSubmit, doc)
	assert.True(t, apperror.HasCode(err, apperror.CodePeriodClosed))

	doc.PostingDate = "2026-07-15"
	require.NoError(t, hooks.Run(ctx, domain.BeforeSave, doc))
	require.NoError(t, hooks.Run(ctx, domain.BeforeSubmit, doc))

	doc.PostingDate = ""
	assert.NoError(t, hooks.Run(ctx, domain.BeforeSubmit, doc), "undated documents pass")

	doc.PostingDate = "15/07/2026"
	assert.True(t, apperror.HasCode(hooks.Run(ctx, domain.BeforeSave, doc), apperror.CodeValidation))
}

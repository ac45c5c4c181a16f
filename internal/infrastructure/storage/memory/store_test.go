package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
)

func newDoc(docType, name, customer string, total int64) *transaction.Document {
	return &transaction.Document{
		Document:   entity.Document{Name: name, DocType: docType, Company: "Acme"},
		Customer:   customer,
		GrandTotal: decimal.NewFromInt(total),
	}
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	doc := newDoc("Sales Invoice", "SINV-2026-00001", "Globex", 100)
	require.NoError(t, s.Insert(ctx, doc))

	err := s.Insert(ctx, doc)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	doc.Remarks = "mutated after insert"
	got, err := s.Get(ctx, "Sales Invoice", "SINV-2026-00001")
	require.NoError(t, err)
	assert.Empty(t, got.Remarks)

	got.Remarks = "updated"
	require.NoError(t, s.Update(ctx, got))
	got, err = s.Get(ctx, "Sales Invoice", "SINV-2026-00001")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Remarks)

	_, err = s.Get(ctx, "Sales Order", "SINV-2026-00001")
	assert.True(t, apperror.IsNotFound(err))
	assert.True(t, apperror.IsNotFound(s.Update(ctx, newDoc("Sales Order", "SO-1", "", 0))))
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := New()
	clock := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	require.NoError(t, s.Insert(ctx, newDoc("Sales Invoice", "SINV-2026-00001", "Globex", 300)))
	require.NoError(t, s.Insert(ctx, newDoc("Sales Invoice", "SINV-2026-00002", "Initech", 100)))
	require.NoError(t, s.Insert(ctx, newDoc("Sales Invoice", "SINV-2026-00003", "Globex", 200)))
	require.NoError(t, s.Insert(ctx, newDoc("Sales Order", "SO-2026-00001", "Globex", 50)))

	submitted := entity.Submitted
	tests := []struct {
		name      string
		filter    domain.ListFilter
		wantNames []string
		wantTotal int64
	}{
		{
			name:      "by doctype newest first",
			filter:    domain.ListFilter{DocType: "Sales Invoice", OrderBy: "-modified"},
			wantNames: []string{"SINV-2026-00003", "SINV-2026-00002", "SINV-2026-00001"},
			wantTotal: 3,
		},
		{
			name:      "search party",
			filter:    domain.ListFilter{Search: "glob", OrderBy: "name"},
			wantNames: []string{"SINV-2026-00001", "SINV-2026-00003", "SO-2026-00001"},
			wantTotal: 3,
		},
		{
			name:      "by grand total with page",
			filter:    domain.ListFilter{DocType: "Sales Invoice", OrderBy: "grand_total", Limit: 2, Offset: 1},
			wantNames: []string{"SINV-2026-00003", "SINV-2026-00001"},
			wantTotal: 3,
		},
		{
			name:      "offset past the end",
			filter:    domain.ListFilter{Offset: 10},
			wantNames: []string{},
			wantTotal: 4,
		},
		{
			name:      "submitted only",
			filter:    domain.ListFilter{DocStatus: &submitted},
			wantNames: []string{},
			wantTotal: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			names := make([]string, 0, len(res.Items))
			for _, it := range res.Items {
				names = append(names, it.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantTotal, res.TotalCount)
		})
	}
}

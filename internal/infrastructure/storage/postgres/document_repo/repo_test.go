package document_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/domain"
)

func TestColumns(t *testing.T) {
	assert.Equal(t, []string{
		"doctype", "name", "docstatus", "company", "party", "currency", "grand_total", "modified",
	}, summaryColumns)
	assert.Equal(t, "data", allColumns[len(allColumns)-1])
}

func TestParseOrderBy(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "name ASC"},
		{in: "modified", want: "modified ASC"},
		{in: "-grand_total", want: "grand_total DESC"},
		{in: "+doctype", want: "doctype ASC"},
		{in: "data", wantErr: true},
		{in: "name; DROP TABLE x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOrderBy(tt.in)
			if tt.wantErr {
				assert.True(t, apperror.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyFilter(t *testing.T) {
	submitted := entity.Submitted
	q := applyFilter(builder().Select("name").From(tableName), domain.ListFilter{
		DocType:   "Sales Invoice",
		Company:   "Acme",
		DocStatus: &submitted,
		Search:    " glob ",
	})

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT name FROM transaction_documents WHERE doctype = $1 AND company = $2 AND docstatus = $3 AND (name ILIKE $4 OR party ILIKE $5)",
		sql)
	assert.Equal(t, []any{"Sales Invoice", "Acme", 1, "%glob%", "%glob%"}, args)

	sql, args, err = applyFilter(builder().Select("name").From(tableName), domain.ListFilter{}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM transaction_documents", sql)
	assert.Empty(t, args)
}

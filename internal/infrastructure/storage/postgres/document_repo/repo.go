// Package document_repo stores transaction documents in PostgreSQL. Each
// document is one row: the list columns plus the full document as JSONB.
package document_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"txcalc/internal/core/apperror"
	"txcalc/internal/core/entity"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
	"txcalc/internal/infrastructure/storage/postgres"
)

const tableName = "transaction_documents"

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

type documentRow struct {
	DocType    string           `db:"doctype"`
	Name       string           `db:"name"`
	DocStatus  entity.DocStatus `db:"docstatus"`
	Company    string           `db:"company"`
	Party      string           `db:"party"`
	Currency   string           `db:"currency"`
	GrandTotal decimal.Decimal  `db:"grand_total"`
	Modified   time.Time        `db:"modified"`
	Data       []byte           `db:"data"`
}

var (
	allColumns     = postgres.ExtractDBColumns[documentRow]()
	summaryColumns = allColumns[:len(allColumns)-1]
)

// Repo implements domain.DocumentRepository.
type Repo struct {
	txm *postgres.TxManager
	now func() time.Time
}

var _ domain.DocumentRepository = (*Repo)(nil)

// New creates a document repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm, now: time.Now}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) toRow(doc *transaction.Document) (documentRow, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return documentRow{}, fmt.Errorf("marshal document: %w", err)
	}
	s := domain.Summarize(doc, r.now().UTC())
	return documentRow{
		DocType:    s.DocType,
		Name:       s.Name,
		DocStatus:  s.DocStatus,
		Company:    s.Company,
		Party:      s.Party,
		Currency:   s.Currency,
		GrandTotal: s.GrandTotal,
		Modified:   s.Modified,
		Data:       data,
	}, nil
}

// Insert implements domain.DocumentRepository.
func (r *Repo) Insert(ctx context.Context, doc *transaction.Document) error {
	row, err := r.toRow(doc)
	if err != nil {
		return err
	}
	sql, args, err := builder().Insert(tableName).SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewConflict(fmt.Sprintf("%s %s already exists", doc.DocType, doc.Name)).
				WithDetail("name", doc.Name)
		}
		return fmt.Errorf("insert %s: %w", tableName, err)
	}
	return nil
}

// Update implements domain.DocumentRepository.
func (r *Repo) Update(ctx context.Context, doc *transaction.Document) error {
	row, err := r.toRow(doc)
	if err != nil {
		return err
	}
	data := postgres.StructToMap(row)
	delete(data, "doctype")
	delete(data, "name")

	sql, args, err := builder().
		Update(tableName).
		SetMap(data).
		Where(squirrel.Eq{"doctype": doc.DocType, "name": doc.Name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", tableName, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(doc.DocType, doc.Name)
	}
	return nil
}

// Get implements domain.DocumentRepository.
func (r *Repo) Get(ctx context.Context, docType, name string) (*transaction.Document, error) {
	sql, args, err := builder().
		Select(allColumns...).
		From(tableName).
		Where(squirrel.Eq{"doctype": docType, "name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row documentRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(docType, name)
		}
		return nil, fmt.Errorf("get %s: %w", tableName, err)
	}

	var doc transaction.Document
	if err := json.Unmarshal(row.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", docType, name, err)
	}
	return &doc, nil
}

// List implements domain.DocumentRepository.
func (r *Repo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[domain.DocumentSummary], error) {
	result := domain.ListResult[domain.DocumentSummary]{
		Items:  []domain.DocumentSummary{},
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := applyFilter(builder().Select(summaryColumns...).From(tableName), filter)

	countSQL, countArgs, err := builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy, err := parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []documentRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}
	for _, row := range rows {
		result.Items = append(result.Items, domain.DocumentSummary{
			Name:       row.Name,
			DocType:    row.DocType,
			DocStatus:  row.DocStatus,
			Company:    row.Company,
			Party:      row.Party,
			Currency:   row.Currency,
			GrandTotal: row.GrandTotal,
			Modified:   row.Modified,
		})
	}
	return result, nil
}

func applyFilter(q squirrel.SelectBuilder, f domain.ListFilter) squirrel.SelectBuilder {
	if f.DocType != "" {
		q = q.Where(squirrel.Eq{"doctype": f.DocType})
	}
	if f.Company != "" {
		q = q.Where(squirrel.Eq{"company": f.Company})
	}
	if f.DocStatus != nil {
		q = q.Where(squirrel.Eq{"docstatus": int(*f.DocStatus)})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + s + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"party": pattern},
		})
	}
	return q
}

var sortable = map[string]struct{}{
	"name":        {},
	"doctype":     {},
	"modified":    {},
	"grand_total": {},
}

func parseOrderBy(orderBy string) (string, error) {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return "name ASC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else {
		field = strings.TrimPrefix(orderBy, "+")
	}

	if _, ok := sortable[field]; !ok {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy)
	}
	return field + " " + direction, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"txcalc/internal/core/id"
	"txcalc/internal/domain"
	"txcalc/internal/domain/transaction"
	"txcalc/pkg/logger"
)

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// maxOutboxRetries marks a message failed after this many attempts.
const maxOutboxRetries = 5

// Document event types.
const (
	EventDocumentSaved     = "DocumentSaved"
	EventDocumentSubmitted = "DocumentSubmitted"
)

// OutboxMessage is a row of the document_outbox table.
type OutboxMessage struct {
	ID          id.ID        `db:"id"`
	DocType     string       `db:"doctype"`
	DocName     string       `db:"docname"`
	EventType   string       `db:"event_type"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	RetryCount  int          `db:"retry_count"`
	LastError   *string      `db:"last_error"`
	NextRetryAt *time.Time   `db:"next_retry_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

// OutboxPublisher records document events in the saving transaction.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates an outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes one event. It must run inside a transaction.
func (p *OutboxPublisher) Publish(ctx context.Context, eventType string, doc *transaction.Document) error {
	t := p.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	payload, err := json.Marshal(domain.Summarize(doc, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = t.Exec(ctx, `
		INSERT INTO document_outbox (id, doctype, docname, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id.New(), doc.DocType, doc.Name, eventType, payload, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// Register hooks the publisher to the after-save and after-submit events,
// which run inside the document transaction.
func (p *OutboxPublisher) Register(hooks *domain.DocumentHooks) {
	hooks.OnAfterSave(func(ctx context.Context, doc *transaction.Document) error {
		return p.Publish(ctx, EventDocumentSaved, doc)
	})
	hooks.OnAfterSubmit(func(ctx context.Context, doc *transaction.Document) error {
		return p.Publish(ctx, EventDocumentSubmitted, doc)
	})
}

// OutboxHandler delivers a message downstream.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxHandlerFunc adapts a function to OutboxHandler.
type OutboxHandlerFunc func(ctx context.Context, msg *OutboxMessage) error

// Handle calls f.
func (f OutboxHandlerFunc) Handle(ctx context.Context, msg *OutboxMessage) error {
	return f(ctx, msg)
}

// OutboxRelay drains pending messages to a handler.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates an outbox relay.
func NewOutboxRelay(pool *Pool, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{pool: pool.Pool, batchSize: batchSize, handler: handler}
}

// Run processes batches every interval until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.ProcessBatch(ctx); err != nil {
				logger.Warn(ctx, "outbox batch failed", "error", err)
			} else if n > 0 {
				logger.Debug(ctx, "outbox batch delivered", "count", n)
			}
		}
	}
}

// ProcessBatch delivers up to batchSize due messages and returns how many
// were delivered.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctype, docname, event_type, payload, status,
		       retry_count, last_error, next_retry_at, created_at
		FROM document_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxStatusPending, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox messages: %w", err)
	}

	var messages []*OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		if err := rows.Scan(
			&msg.ID, &msg.DocType, &msg.DocName, &msg.EventType, &msg.Payload, &msg.Status,
			&msg.RetryCount, &msg.LastError, &msg.NextRetryAt, &msg.CreatedAt,
		); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, &msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox messages: %w", err)
	}

	delivered := 0
	for _, msg := range messages {
		if err := r.deliver(ctx, msg); err != nil {
			logger.Warn(ctx, "outbox delivery failed", "id", msg.ID, "docname", msg.DocName, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (r *OutboxRelay) deliver(ctx context.Context, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		// linear backoff, one minute per attempt
		nextRetry := time.Now().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		_, updateErr := r.pool.Exec(ctx, `
			UPDATE document_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
			WHERE id = $5
		`, err.Error(), nextRetry, maxOutboxRetries, OutboxStatusFailed, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE document_outbox SET status = $1, published_at = NOW() WHERE id = $2
	`, OutboxStatusPublished, msg.ID)
	return err
}

package database

import (
	"context"
	"database/sql"

	"github.com/siherrmann/pano/helper"
)

// querier runs the queries of a handler, either on the pool or in a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BeginTx starts a transaction on the archive database. Handlers returned
// by WithTx run their queries inside it.
func (h *InvestigationsDBHandler) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}
	return tx, nil
}

// WithTx returns a copy of the handler bound to tx.
func (h *InvestigationsDBHandler) WithTx(tx *sql.Tx) *InvestigationsDBHandler {
	return &InvestigationsDBHandler{db: h.db, q: tx}
}

// WithTx returns a copy of the handler bound to tx.
func (h *EntitiesDBHandler) WithTx(tx *sql.Tx) *EntitiesDBHandler {
	return &EntitiesDBHandler{db: h.db, q: tx}
}

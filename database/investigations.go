package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
	"github.com/siherrmann/pano/sql"
)

// InvestigationsDBHandlerFunctions defines the interface for Investigations database operations.
type InvestigationsDBHandlerFunctions interface {
	InsertInvestigation(ctx context.Context, investigation *model.ArchivedInvestigation) error
	UpdateInvestigation(ctx context.Context, investigation *model.ArchivedInvestigation) error
	SelectInvestigation(ctx context.Context, rid uuid.UUID) (*model.ArchivedInvestigation, error)
	SelectAllInvestigations(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.ArchivedInvestigation, error)
	DeleteInvestigation(ctx context.Context, rid uuid.UUID) error
}

// InvestigationsDBHandler handles investigation-related database operations
type InvestigationsDBHandler struct {
	db *helper.Database
	q  querier
}

// NewInvestigationsDBHandler creates a new investigations database handler.
// It loads the investigation SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewInvestigationsDBHandler(db *helper.Database, force bool) (*InvestigationsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	investigationsDbHandler := &InvestigationsDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := sql.LoadInvestigationsSql(investigationsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load investigations sql", err)
	}

	err = investigationsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized InvestigationsDBHandler")

	return investigationsDbHandler, nil
}

// CreateTable creates the 'investigations' table and its indexes if they
// do not exist yet.
func (h *InvestigationsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.q.ExecContext(ctx, `SELECT init_investigations();`)
	if err != nil {
		log.Panicf("error initializing investigations table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table investigations")

	return nil
}

// InsertInvestigation inserts the investigation and sets its id, rid and timestamps
func (h *InvestigationsDBHandler) InsertInvestigation(ctx context.Context, investigation *model.ArchivedInvestigation) error {
	document, err := json.Marshal(investigation.Document)
	if err != nil {
		return helper.NewError("marshal document", err)
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM insert_investigation($1, $2, $3)`,
		investigation.Name,
		document,
		investigation.Metadata,
	)

	return scanInvestigation(row, investigation)
}

// UpdateInvestigation replaces name, document and metadata of the investigation with the same rid
func (h *InvestigationsDBHandler) UpdateInvestigation(ctx context.Context, investigation *model.ArchivedInvestigation) error {
	document, err := json.Marshal(investigation.Document)
	if err != nil {
		return helper.NewError("marshal document", err)
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM update_investigation($1, $2, $3, $4)`,
		investigation.RID,
		investigation.Name,
		document,
		investigation.Metadata,
	)

	return scanInvestigation(row, investigation)
}

// SelectInvestigation retrieves an investigation by rid
func (h *InvestigationsDBHandler) SelectInvestigation(ctx context.Context, rid uuid.UUID) (*model.ArchivedInvestigation, error) {
	investigation := &model.ArchivedInvestigation{}
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM select_investigation($1)`,
		rid,
	)

	err := scanInvestigation(row, investigation)
	if err != nil {
		return nil, err
	}

	return investigation, nil
}

// SelectAllInvestigations retrieves investigations newest first. Pass the
// created_at of the last investigation of a page to get the next page.
func (h *InvestigationsDBHandler) SelectAllInvestigations(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.ArchivedInvestigation, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_all_investigations($1, $2)`,
		lastCreatedAt,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var investigations []*model.ArchivedInvestigation
	for rows.Next() {
		investigation := &model.ArchivedInvestigation{}
		err := scanInvestigation(rows, investigation)
		if err != nil {
			return nil, err
		}

		investigations = append(investigations, investigation)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return investigations, nil
}

// DeleteInvestigation deletes an investigation and its archived entities
func (h *InvestigationsDBHandler) DeleteInvestigation(ctx context.Context, rid uuid.UUID) error {
	_, err := h.q.ExecContext(
		ctx,
		`SELECT delete_investigation($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvestigation(row scanner, investigation *model.ArchivedInvestigation) error {
	var document []byte
	err := row.Scan(
		&investigation.ID,
		&investigation.RID,
		&investigation.Name,
		&document,
		&investigation.Metadata,
		&investigation.CreatedAt,
		&investigation.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	investigation.Document = &model.Investigation{}
	err = json.Unmarshal(document, investigation.Document)
	if err != nil {
		return helper.NewError("unmarshal document", err)
	}

	return nil
}

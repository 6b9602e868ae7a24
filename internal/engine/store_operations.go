package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"panel-runtime/internal/instrument"
	"panel-runtime/internal/metadata"
	"panel-runtime/internal/store"
)

// StoreOperations serves the operations a page declares in
// settings.operations, plus its read operation over settings.table, straight
// from the runtime's own database.
type StoreOperations struct {
	store *store.Store
}

func NewStoreOperations(s *store.Store) *StoreOperations {
	return &StoreOperations{store: s}
}

func (s *StoreOperations) Call(ctx context.Context, page *metadata.PageDefinition, op string, payload any) (*OperationResult, error) {
	spec, ok := page.LocalOperation(op)
	if !ok {
		return nil, fmt.Errorf("operation %s is not served locally for page %s", op, page.ID)
	}

	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "operations", "store", "operation."+spec.Kind)
	defer span.End()
	span.SetPage(page.ID, "")
	span.SetMetadata("table", spec.Table)

	var res *OperationResult
	var err error
	switch spec.Kind {
	case metadata.OperationList:
		res, err = s.list(ctx, spec.Table, booleanFields(page, spec.Table), payload)
	case metadata.OperationUpdate:
		res, err = s.update(ctx, spec.Table, payload)
	default:
		err = fmt.Errorf("unknown operation kind %q for %s", spec.Kind, op)
	}
	if err != nil {
		span.SetStatus("error")
		return failedResult(err)
	}
	span.SetStatus("ok")
	return res, nil
}

// failedResult turns request errors into a failed result so their message
// reaches the user. Other errors stay errors.
func failedResult(err error) (*OperationResult, error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &OperationResult{Status: appErr.Status, ErrorCode: appErr.Code, Message: appErr.Message}, nil
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return &OperationResult{Status: http.StatusConflict, ErrorCode: "CONFLICT", Message: "A record with this value already exists"}, nil
	}
	return nil, err
}

func decodeFetchRequest(payload any) (FetchRequest, error) {
	switch p := payload.(type) {
	case FetchRequest:
		return p, nil
	case *FetchRequest:
		return *p, nil
	}
	var req FetchRequest
	b, err := json.Marshal(payload)
	if err != nil {
		return req, InvalidPayloadError("Invalid list payload")
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return req, InvalidPayloadError("Invalid list payload")
	}
	return req, nil
}

func (s *StoreOperations) list(ctx context.Context, table string, boolFields []string, payload any) (*OperationResult, error) {
	req, err := decodeFetchRequest(payload)
	if err != nil {
		return nil, err
	}
	plan := QueryPlan{Table: table, Request: req}

	qr, err := BuildSelectSQL(plan, s.store.Dialect)
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, s.store.DB, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	cr, err := BuildCountSQL(plan, s.store.Dialect)
	if err != nil {
		return nil, err
	}
	countRow, err := store.QueryRow(ctx, s.store.DB, cr.SQL, cr.Params...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	total, _ := toNumber(countRow["count"])

	if rows == nil {
		rows = []map[string]any{}
	}
	store.NormalizeRows(s.store.Dialect, rows, boolFields)
	return &OperationResult{
		Status: http.StatusOK,
		Data:   map[string]any{"list": rows, "total": int(total)},
	}, nil
}

// booleanFields lists the fields of table that the page shows as booleans:
// boolean grid columns and the columns behind row switches. Lookups into
// other tables get none.
func booleanFields(page *metadata.PageDefinition, table string) []string {
	if table != page.Settings.Table {
		return nil
	}
	var fields []string
	for _, c := range page.Grid {
		if c.Type == metadata.TypeBoolean {
			fields = append(fields, c.Field)
		}
	}
	for _, b := range page.Buttons {
		if b.Type == metadata.ButtonTypeSwitch && b.Column != "" {
			fields = append(fields, b.Column)
		}
	}
	return fields
}

// update writes the payload's fields to the row identified by payload.id.
func (s *StoreOperations) update(ctx context.Context, table string, payload any) (*OperationResult, error) {
	if err := checkIdent("table", table); err != nil {
		return nil, err
	}
	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, InvalidPayloadError("Update payload must be an object")
	}
	id, ok := fields["id"]
	if !ok || id == nil {
		return nil, InvalidPayloadError("Update payload requires id")
	}

	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	for _, k := range sortedKeys(fields) {
		if k == "id" {
			continue
		}
		if err := checkIdent("column", k); err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", k, pb.Add(bind(fields[k], s.store.Dialect))))
	}
	if len(sets) == 0 {
		return nil, InvalidPayloadError("Nothing to update")
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), pb.Add(id))

	n, err := store.Exec(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, store.MapError(s.store.Dialect, err))
	}
	if n == 0 {
		return &OperationResult{Status: http.StatusNotFound, ErrorCode: "NOT_FOUND",
			Message: fmt.Sprintf("%s row %s not found", table, metadata.Stringify(id))}, nil
	}
	return &OperationResult{Status: http.StatusOK, Data: map[string]any{"updated": n}, Message: "Updated"}, nil
}

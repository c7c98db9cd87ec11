package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PositionRecordsModel = (*customPositionRecordsModel)(nil)

// ClosedQuery narrows ListClosed. Zero values mean no constraint.
type ClosedQuery struct {
	Symbol string
	Since  time.Time
	Limit  int
}

// CloseFields are written when an open record moves to win or loss.
type CloseFields struct {
	Outcome    string
	ExitPrice  float64
	ExitReason string
	FinalPnl   float64
	ClosedAt   time.Time
}

type (
	// PositionRecordsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customPositionRecordsModel.
	PositionRecordsModel interface {
		positionRecordsModel
		ListOpen(ctx context.Context) ([]PositionRecords, error)
		ListClosed(ctx context.Context, q ClosedQuery) ([]PositionRecords, error)
		CloseOpen(ctx context.Context, id string, f CloseFields) (bool, error)
		UpdateProtection(ctx context.Context, id string, stopLossPlaced, takeProfitPlaced bool) (bool, error)
		ConfirmFill(ctx context.Context, id string, entryPrice, contracts float64) (bool, error)
	}

	customPositionRecordsModel struct {
		*defaultPositionRecordsModel
	}
)

// NewPositionRecordsModel returns a model for the database table.
func NewPositionRecordsModel(conn sqlx.SqlConn) PositionRecordsModel {
	return &customPositionRecordsModel{
		defaultPositionRecordsModel: newPositionRecordsModel(conn),
	}
}

// ListOpen returns every record awaiting reconciliation, oldest first.
func (m *customPositionRecordsModel) ListOpen(ctx context.Context) ([]PositionRecords, error) {
	query := fmt.Sprintf("select %s from %s where outcome = 'open' order by opened_at, id", positionRecordsRows, m.table)
	var rows []PositionRecords
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("position_records.ListOpen query: %w", err)
	}
	return rows, nil
}

// ListClosed returns closed records newest first.
func (m *customPositionRecordsModel) ListClosed(ctx context.Context, q ClosedQuery) ([]PositionRecords, error) {
	var (
		clauses = []string{"outcome <> 'open'", "closed_at is not null"}
		args    []any
	)
	if s := strings.ToUpper(strings.TrimSpace(q.Symbol)); s != "" {
		args = append(args, s)
		clauses = append(clauses, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since.UTC())
		clauses = append(clauses, fmt.Sprintf("closed_at >= $%d", len(args)))
	}
	query := fmt.Sprintf("select %s from %s where %s order by closed_at desc, id",
		positionRecordsRows, m.table, strings.Join(clauses, " and "))
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}

	var rows []PositionRecords
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("position_records.ListClosed query: %w", err)
	}
	return rows, nil
}

// CloseOpen writes the closing fields only while the row is still open. It
// reports whether a row was updated.
func (m *customPositionRecordsModel) CloseOpen(ctx context.Context, id string, f CloseFields) (bool, error) {
	query := fmt.Sprintf(`update %s
set outcome = $2, exit_price = $3, exit_reason = $4, final_pnl = $5, closed_at = $6
where id = $1 and outcome = 'open'`, m.table)
	res, err := m.conn.ExecCtx(ctx, query, id, f.Outcome, f.ExitPrice, f.ExitReason, f.FinalPnl, f.ClosedAt.UTC())
	return affected(res, err)
}

// UpdateProtection records which protective orders are resting on an open row.
func (m *customPositionRecordsModel) UpdateProtection(ctx context.Context, id string, stopLossPlaced, takeProfitPlaced bool) (bool, error) {
	query := fmt.Sprintf("update %s set stop_loss_placed = $2, take_profit_placed = $3 where id = $1 and outcome = 'open'", m.table)
	res, err := m.conn.ExecCtx(ctx, query, id, stopLossPlaced, takeProfitPlaced)
	return affected(res, err)
}

// ConfirmFill writes the venue entry price and size on an open row and clears
// fill_pending.
func (m *customPositionRecordsModel) ConfirmFill(ctx context.Context, id string, entryPrice, contracts float64) (bool, error) {
	query := fmt.Sprintf(`update %s
set entry_price = $2, contracts = $3, fill_pending = false
where id = $1 and outcome = 'open'`, m.table)
	res, err := m.conn.ExecCtx(ctx, query, id, entryPrice, contracts)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package model

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ AccountMetricsModel = (*customAccountMetricsModel)(nil)

type (
	// AccountMetricsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customAccountMetricsModel.
	AccountMetricsModel interface {
		accountMetricsModel
		Since(ctx context.Context, since time.Time) ([]AccountMetrics, error)
	}

	customAccountMetricsModel struct {
		*defaultAccountMetricsModel
	}
)

// NewAccountMetricsModel returns a model for the database table.
func NewAccountMetricsModel(conn sqlx.SqlConn) AccountMetricsModel {
	return &customAccountMetricsModel{
		defaultAccountMetricsModel: newAccountMetricsModel(conn),
	}
}

// Since returns samples taken at or after since, oldest first. A zero since
// returns the whole series.
func (m *customAccountMetricsModel) Since(ctx context.Context, since time.Time) ([]AccountMetrics, error) {
	query := fmt.Sprintf("select %s from %s where sampled_at >= $1 order by sampled_at, id", accountMetricsRows, m.table)
	var rows []AccountMetrics
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("account_metrics.Since query: %w", err)
	}
	return rows, nil
}

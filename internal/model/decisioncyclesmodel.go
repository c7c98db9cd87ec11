package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ DecisionCyclesModel = (*customDecisionCyclesModel)(nil)

type (
	// DecisionCyclesModel is an interface to be customized, add more methods here,
	// and implement the added methods in customDecisionCyclesModel.
	DecisionCyclesModel interface {
		decisionCyclesModel
		Recent(ctx context.Context, limit int) ([]DecisionCycles, error)
	}

	customDecisionCyclesModel struct {
		*defaultDecisionCyclesModel
	}
)

// NewDecisionCyclesModel returns a model for the database table.
func NewDecisionCyclesModel(conn sqlx.SqlConn) DecisionCyclesModel {
	return &customDecisionCyclesModel{
		defaultDecisionCyclesModel: newDecisionCyclesModel(conn),
	}
}

// Recent returns the newest cycles first.
func (m *customDecisionCyclesModel) Recent(ctx context.Context, limit int) ([]DecisionCycles, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("select %s from %s order by started_at desc limit $1", decisionCyclesRows, m.table)
	var rows []DecisionCycles
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("decision_cycles.Recent query: %w", err)
	}
	return rows, nil
}

package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ ConversationsModel = (*customConversationsModel)(nil)

type (
	// ConversationsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customConversationsModel.
	ConversationsModel interface {
		conversationsModel
		CountByPromptDigest(ctx context.Context, digest string) (int64, error)
	}

	customConversationsModel struct {
		*defaultConversationsModel
	}
)

// NewConversationsModel returns a model for the database table.
func NewConversationsModel(conn sqlx.SqlConn) ConversationsModel {
	return &customConversationsModel{
		defaultConversationsModel: newConversationsModel(conn),
	}
}

// CountByPromptDigest reports how many oracle calls used the same prompt.
func (m *customConversationsModel) CountByPromptDigest(ctx context.Context, digest string) (int64, error) {
	query := fmt.Sprintf("select count(*) from %s where prompt_digest = $1", m.table)
	var n int64
	if err := m.conn.QueryRowCtx(ctx, &n, query, digest); err != nil {
		return 0, fmt.Errorf("conversations.CountByPromptDigest query: %w", err)
	}
	return n, nil
}

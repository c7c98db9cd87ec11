// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package logic

import (
	"context"

	"probsbots/internal/svc"
	"probsbots/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetOpenPositionsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetOpenPositionsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetOpenPositionsLogic {
	return &GetOpenPositionsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetOpenPositionsLogic) GetOpenPositions() (resp *types.OpenPositionsResponse, err error) {
	records, err := l.svcCtx.Store.ListOpen(l.ctx)
	if err != nil {
		l.Errorf("list open positions: %v", err)
		return nil, err
	}
	resp = &types.OpenPositionsResponse{Positions: make([]types.PositionRecord, 0, len(records))}
	for _, rec := range records {
		resp.Positions = append(resp.Positions, types.PositionRecord{
			Id:               rec.ID,
			Symbol:           rec.Symbol,
			Operation:        string(rec.Operation),
			EntryPrice:       rec.EntryPrice,
			AmountUsd:        rec.AmountUSD,
			Contracts:        rec.Contracts,
			Leverage:         rec.Leverage,
			StopLoss:         rec.StopLoss,
			TakeProfit:       rec.TakeProfit,
			StopLossPlaced:   rec.Protection.StopLossPlaced,
			TakeProfitPlaced: rec.Protection.TakeProfitPlaced,
			FillPending:      rec.FillPending,
			Rationale:        rec.Rationale,
			OpenedAt:         rec.CreatedAt.UnixMilli(),
		})
	}
	return resp, nil
}

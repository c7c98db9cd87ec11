// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package logic

import (
	"context"

	"probsbots/internal/svc"
	"probsbots/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetPerformanceSummaryLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetPerformanceSummaryLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetPerformanceSummaryLogic {
	return &GetPerformanceSummaryLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetPerformanceSummaryLogic) GetPerformanceSummary(req *types.PerformanceSummaryRequest) (resp *types.PerformanceSummaryResponse, err error) {
	s, err := l.svcCtx.Performance.Summary(l.ctx, req.Symbol, req.Days)
	if err != nil {
		l.Errorf("performance summary symbol=%q: %v", req.Symbol, err)
		return nil, err
	}
	return &types.PerformanceSummaryResponse{
		Symbol:                 s.Symbol,
		LookbackDays:           s.LookbackDays,
		TotalTrades:            s.TotalTrades,
		Wins:                   s.Wins,
		Losses:                 s.Losses,
		WinRate:                s.WinRate,
		AvgWinPnl:              s.AvgWinPnL,
		AvgLossPnl:             s.AvgLossPnL,
		HighLeverageTradeCount: s.HighLeverageTradeCount,
		AvgTpPercent:           s.AvgTakeProfitPercent,
		AvgSlPercent:           s.AvgStopLossPercent,
	}, nil
}

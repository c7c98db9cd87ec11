// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package logic

import (
	"context"

	"probsbots/internal/svc"
	"probsbots/internal/types"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetAntiPatternsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetAntiPatternsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetAntiPatternsLogic {
	return &GetAntiPatternsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetAntiPatternsLogic) GetAntiPatterns(req *types.AntiPatternsRequest) (resp *types.AntiPatternsResponse, err error) {
	patterns, err := l.svcCtx.Performance.AntiPatterns(l.ctx, req.Symbol, req.Limit)
	if err != nil {
		l.Errorf("anti-patterns symbol=%q: %v", req.Symbol, err)
		return nil, err
	}
	resp = &types.AntiPatternsResponse{AntiPatterns: make([]types.AntiPattern, 0, len(patterns))}
	for _, p := range patterns {
		resp.AntiPatterns = append(resp.AntiPatterns, types.AntiPattern{
			SetupDescriptor: p.Setup,
			Leverage:        p.Leverage,
			SlPercent:       p.StopLoss,
			TpPercent:       p.TakeProfit,
			TradeCount:      p.TradeCount,
			AvgPnl:          p.AvgPnL,
		})
	}
	return resp, nil
}

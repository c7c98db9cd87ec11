// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package logic

import (
	"context"
	"time"

	"probsbots/internal/svc"
	"probsbots/internal/types"
	"probsbots/pkg/account"

	"github.com/zeromicro/go-zero/core/logx"
)

type GetAccountMetricsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
	now    func() time.Time
}

func NewGetAccountMetricsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetAccountMetricsLogic {
	return &GetAccountMetricsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
		now:    time.Now,
	}
}

// GetAccountMetrics returns the sampled series for the last req.Hours,
// thinned to at most account.DefaultMaxSeries points.
func (l *GetAccountMetricsLogic) GetAccountMetrics(req *types.AccountMetricsRequest) (resp *types.AccountMetricsResponse, err error) {
	since := l.now().Add(-time.Duration(req.Hours) * time.Hour)
	series, err := l.svcCtx.Account.Series(l.ctx, since, account.DefaultMaxSeries)
	if err != nil {
		l.Errorf("account series: %v", err)
		return nil, err
	}
	resp = &types.AccountMetricsResponse{
		InitialCapital: l.svcCtx.Account.InitialCapital(),
		Series:         make([]types.AccountSample, 0, len(series)),
	}
	for _, s := range series {
		resp.Series = append(resp.Series, types.AccountSample{
			Timestamp:      s.SampledAt.UnixMilli(),
			PositionsValue: s.PositionsValue,
			ContractValue:  s.ContractValue,
			TotalCashValue: s.TotalCash,
			AvailableCash:  s.AvailableCash,
			TotalReturn:    s.TotalReturn,
			SharpeRatio:    s.SharpeRatio,
			Positions:      s.OpenPositions,
		})
	}
	return resp, nil
}

package main

import (
	"context"
	"errors"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/internal/scheduler"
	managerpkg "probsbots/pkg/manager"
)

const (
	jobDecision  = "decision"
	jobReconcile = "reconcile"
	jobAccount   = "account"
)

func (a *app) jobs() []scheduler.Job {
	sched := a.cfg.Schedule
	jobs := []scheduler.Job{
		{Name: jobReconcile, Interval: sched.Reconcile, Run: a.reconcileOnce},
		{Name: jobAccount, Interval: sched.AccountSample, Run: a.sampleAccount},
	}
	if a.svc.Manager != nil {
		jobs = append([]scheduler.Job{{Name: jobDecision, Interval: sched.Decision, Run: a.decideOnce}}, jobs...)
	}
	return jobs
}

func (a *app) decideOnce(ctx context.Context) error {
	_, err := a.svc.Manager.RunDecisionCycle(ctx)
	if errors.Is(err, managerpkg.ErrGuardSkip) {
		return nil
	}
	return err
}

func (a *app) reconcileOnce(ctx context.Context) error {
	if a.svc.Manager != nil {
		if err := a.svc.Manager.SyncPaperMarks(ctx); err != nil {
			logx.WithContext(ctx).Errorf("trader: paper marks: %v", err)
		}
	}
	report, err := a.svc.Reconciler.Run(ctx)
	if err != nil {
		return err
	}
	return errors.Join(report.Errors...)
}

func (a *app) sampleAccount(ctx context.Context) error {
	m, err := a.svc.Account.Sample(ctx)
	if m != nil {
		a.svc.Metrics.UpdateAccount(m.TotalCash, m.TotalReturn, m.OpenPositions)
	}
	return err
}

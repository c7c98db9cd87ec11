package executor

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/pkg/market"
)

// BuildContext fills base.Snapshots for every tracked symbol and every symbol
// with an open position. A failed snapshot is logged and skipped; the cycle
// only fails when no snapshot could be taken at all.
func BuildContext(ctx context.Context, base *Context, provider market.Provider) (*Context, error) {
	if base == nil {
		return nil, errors.New("executor: base context is required")
	}
	out := *base
	out.Snapshots = make(map[string]*market.Snapshot, len(base.Symbols)+len(base.Positions))
	for sym, snap := range base.Snapshots {
		out.Snapshots[sym] = snap
	}
	if provider == nil {
		return &out, nil
	}

	syms := make(map[string]struct{}, len(base.Symbols)+len(base.Positions))
	for _, s := range base.Symbols {
		syms[strings.ToUpper(s)] = struct{}{}
	}
	for _, p := range base.Positions {
		syms[strings.ToUpper(p.Symbol)] = struct{}{}
	}
	ordered := make([]string, 0, len(syms))
	for s := range syms {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	var lastErr error
	for _, sym := range ordered {
		if _, ok := out.Snapshots[sym]; ok {
			continue
		}
		snap, err := provider.Snapshot(ctx, sym)
		if err != nil {
			logx.WithContext(ctx).Errorf("executor: snapshot %s: %v", sym, err)
			lastErr = err
			continue
		}
		out.Snapshots[sym] = snap
	}
	if len(out.Snapshots) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return &out, nil
}

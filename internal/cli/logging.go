package cli

import (
	"sort"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/internal/config"
	"probsbots/pkg/confkit"
)

const paperVenueType = "sim"

// Startup is what the trader is about to run against.
type Startup struct {
	Env string
	// Venue is "<name>/<type>" of the default exchange provider, or "none".
	Venue string
	// Live is set when orders reach a real venue with real funds.
	Live    bool
	Symbols []string
	Ledger  string
	Cache   string
	// Sections lists every yaml section as file, inline or missing.
	Sections map[string]string
	Schedule config.ScheduleConf
}

// DescribeStartup reads the loaded configuration into a Startup.
func DescribeStartup(cfg *config.Config) Startup {
	s := Startup{Venue: "none", Ledger: "memory", Cache: "none", Sections: map[string]string{}}
	if cfg == nil {
		return s
	}
	s.Env = cfg.Env
	s.Schedule = cfg.Schedule
	if strings.TrimSpace(cfg.Postgres.DSN) != "" {
		s.Ledger = "postgres"
	}
	if strings.TrimSpace(cfg.Redis.Host) != "" {
		s.Cache = "redis"
	}
	if ex := cfg.Exchange.Value; ex != nil {
		if p := ex.Providers[ex.Default]; p != nil {
			s.Venue = ex.Default + "/" + p.Type
			s.Live = !strings.EqualFold(p.Type, paperVenueType) && !p.Testnet && !cfg.IsTestEnv()
		}
	}
	if exec := cfg.Executor.Value; exec != nil {
		s.Symbols = append(s.Symbols, exec.Symbols...)
	}

	s.Sections["llm"] = sectionSource(cfg.LLM)
	s.Sections["executor"] = sectionSource(cfg.Executor)
	s.Sections["manager"] = sectionSource(cfg.Manager)
	s.Sections["reconciler"] = sectionSource(cfg.Reconciler)
	s.Sections["exchange"] = sectionSource(cfg.Exchange)
	s.Sections["market"] = sectionSource(cfg.Market)
	return s
}

// Missing returns the unconfigured sections in name order.
func (s Startup) Missing() []string {
	var out []string
	for name, src := range s.Sections {
		if src == "missing" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Fields flattens the report into logx fields.
func (s Startup) Fields() []logx.LogField {
	fields := []logx.LogField{
		logx.Field("env", s.Env),
		logx.Field("venue", s.Venue),
		logx.Field("live", s.Live),
		logx.Field("symbols", strings.Join(s.Symbols, ",")),
		logx.Field("ledger", s.Ledger),
		logx.Field("cache", s.Cache),
		logx.Field("decision_every", s.Schedule.Decision.String()),
		logx.Field("reconcile_every", s.Schedule.Reconcile.String()),
		logx.Field("sample_every", s.Schedule.AccountSample.String()),
	}
	if s.Schedule.MetricsAddr != "" {
		fields = append(fields, logx.Field("metrics", s.Schedule.MetricsAddr))
	}
	names := make([]string, 0, len(s.Sections))
	for name := range s.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, logx.Field("section_"+name, s.Sections[name]))
	}
	return fields
}

// LogConfigSummary writes the startup report. Live trading and missing
// sections are raised as slow entries so they stand out in the stream.
func LogConfigSummary(cfg *config.Config) {
	s := DescribeStartup(cfg)
	logx.Infow("trader: starting", s.Fields()...)
	if s.Live {
		logx.Sloww("trader: orders go to a live venue", logx.Field("venue", s.Venue))
	}
	if missing := s.Missing(); len(missing) > 0 {
		logx.Sloww("trader: sections not configured", logx.Field("sections", strings.Join(missing, ",")))
	}
}

func sectionSource[T any](section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return section.File
	case section.Value != nil:
		return "inline"
	default:
		return "missing"
	}
}

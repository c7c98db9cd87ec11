package cache

import (
	"strings"
	"time"

	"probsbots/internal/config"
)

// Namespace is the Redis key prefix for the application.
const Namespace = "probsbots"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Positions --------------------------------------------------------------

// PositionsOpenKey caches the list of open position records.
func PositionsOpenKey() string {
	return formatKey("positions", "open")
}

// --- Performance ------------------------------------------------------------

// PerformanceKey caches the aggregated report for one symbol. An empty symbol
// is the all-symbols report.
func PerformanceKey(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = "all"
	}
	return formatKey("performance", symbol)
}

// --- Account & decisions ----------------------------------------------------

// AccountSeriesKey caches the sampled account metrics series.
func AccountSeriesKey() string {
	return formatKey("account", "series")
}

// DecisionLastKey caches a summary of the latest decision cycle.
func DecisionLastKey() string {
	return formatKey("decision", "last")
}

// --- TTL Helpers ------------------------------------------------------------

// PositionsTTL keeps open positions fresh between reconciliation passes.
func PositionsTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// PerformanceTTL returns the TTL for performance reports.
func PerformanceTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// AccountSeriesTTL returns the TTL for the account metrics series.
func AccountSeriesTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// DecisionLastTTL returns the TTL for the latest decision summary.
func DecisionLastTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

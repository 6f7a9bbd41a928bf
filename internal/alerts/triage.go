package alerts

import (
	"math"
	"sort"
	"strings"

	"socsync/pkg/models"
)

// Tier boundaries. A score at a boundary belongs to the lower tier.
const (
	ColdMax  = 3.0
	WarmMax  = 7.0
	MaxScore = 10.0
)

// Queue is the operational view an alert is routed to.
type Queue string

const (
	QueueLogs       Queue = "logs"
	QueueAlerts     Queue = "alerts"
	QueueQuarantine Queue = "quarantine"
)

// Queues lists every queue in triage order.
var Queues = []Queue{QueueLogs, QueueAlerts, QueueQuarantine}

// ParseQueue converts a queue name.
func ParseQueue(name string) (Queue, bool) {
	switch Queue(strings.ToLower(strings.TrimSpace(name))) {
	case QueueLogs:
		return QueueLogs, true
	case QueueAlerts:
		return QueueAlerts, true
	case QueueQuarantine:
		return QueueQuarantine, true
	}
	return "", false
}

// LevelForScore derives the risk tier from a score.
func LevelForScore(score float64) models.RiskLevel {
	switch {
	case score <= ColdMax:
		return models.RiskCold
	case score <= WarmMax:
		return models.RiskWarm
	default:
		return models.RiskHot
	}
}

// QueueFor routes a risk tier to its queue.
func QueueFor(level models.RiskLevel) Queue {
	switch level {
	case models.RiskHot:
		return QueueQuarantine
	case models.RiskWarm:
		return QueueAlerts
	default:
		return QueueLogs
	}
}

// QueueOf returns the queue an alert currently belongs to.
func QueueOf(alert *models.Alert) Queue {
	return QueueFor(LevelForScore(ClampScore(alert.RiskScore)))
}

// ClampScore bounds a score to [0, MaxScore]. NaN becomes 0.
func ClampScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// BreakdownTotal sums the named sub-scores.
func BreakdownTotal(breakdown map[string]float64) float64 {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += breakdown[k]
	}
	return total
}

// Normalize returns a copy of alert whose RiskLevel is re-derived from
// RiskScore. A missing score is taken from the breakdown.
func Normalize(alert *models.Alert) *models.Alert {
	if alert == nil {
		return nil
	}
	out := alert.Clone()
	if out.RiskScore == 0 && len(out.RiskBreakdown) > 0 {
		out.RiskScore = BreakdownTotal(out.RiskBreakdown)
	}
	out.RiskScore = ClampScore(out.RiskScore)
	out.RiskLevel = LevelForScore(out.RiskScore)
	if out.Status == "" {
		out.Status = models.StatusNew
	}
	return out
}

// Crossed reports whether moving from prev to next changes the tier.
func Crossed(prev, next float64) bool {
	return LevelForScore(ClampScore(prev)) != LevelForScore(ClampScore(next))
}

// LevelWeight orders tiers for sorting, HOT highest.
func LevelWeight(level models.RiskLevel) int {
	switch level {
	case models.RiskHot:
		return 3
	case models.RiskWarm:
		return 2
	case models.RiskCold:
		return 1
	default:
		return 0
	}
}

package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/DrSkyle/costguardian/pkg/config"
	"github.com/DrSkyle/costguardian/pkg/storage"
)

// Severity classifies how urgent a detected anomaly is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DetectedAnomaly is one flagged service for the current period.
type DetectedAnomaly struct {
	Service        string
	CurrentCost    float64
	BaselineCost   float64
	AbsoluteChange float64
	PercentChange  float64
	StdDeviations  float64
	Severity       Severity
	Reason         string
	IsNewService   bool
}

// Description renders a one-line human summary.
func (a DetectedAnomaly) Description() string {
	if a.IsNewService {
		return fmt.Sprintf("New service %s appeared with $%.2f cost", a.Service, a.CurrentCost)
	}
	direction := "decreased"
	if a.AbsoluteChange > 0 {
		direction = "increased"
	}
	return fmt.Sprintf("%s cost %s by $%.2f (%+.0f%%) from baseline $%.2f",
		a.Service, direction, math.Abs(a.AbsoluteChange), a.PercentChange, a.BaselineCost)
}

// AnomalyDetector flags services whose current cost crosses any of three
// independent thresholds against its baseline, plus services observed for
// the first time.
//
// The detector assumes a pre-validated configuration (config.Validate ran at
// load time) and never returns an error: missing or zero costs are "no
// data", not failures.
type AnomalyDetector struct {
	cfg      config.AnomalyDetectionConfig
	baseline *BaselineCalculator
}

// NewAnomalyDetector builds a detector around a validated configuration.
func NewAnomalyDetector(cfg config.AnomalyDetectionConfig) *AnomalyDetector {
	return &AnomalyDetector{
		cfg:      cfg,
		baseline: NewBaselineCalculator(),
	}
}

// Detect evaluates the current snapshot against the historical ones
// (ordered oldest to newest) and returns the surviving anomalies.
// Anomalies for services named by an active change are suppressed.
func (d *AnomalyDetector) Detect(
	current storage.CostSnapshot,
	historical []storage.CostSnapshot,
	activeChanges []storage.ChangeLog,
) []DetectedAnomaly {
	if !d.cfg.Enabled {
		return nil
	}

	var anomalies []DetectedAnomaly

	historicalServices := d.baseline.AllServices(historical)

	if d.cfg.AlertOnNewServices {
		anomalies = append(anomalies, d.detectNewServices(current, historicalServices)...)
	}

	for service, currentCost := range current.CostByService {
		if _, known := historicalServices[service]; !known {
			continue // Handled by the new-service pass, or alerting on new services is off.
		}
		if currentCost < d.cfg.Filters.MinimumCost {
			continue
		}

		baseline := d.baseline.ServiceBaseline(historical, service)
		if !baseline.HasEnoughData() {
			continue // Insufficient history is not evidence either way.
		}

		if anomaly, ok := d.checkService(service, currentCost, baseline); ok {
			anomalies = append(anomalies, anomaly)
		}
	}

	if len(activeChanges) > 0 {
		anomalies = filterAcknowledged(anomalies, activeChanges)
	}

	return anomalies
}

func (d *AnomalyDetector) detectNewServices(
	current storage.CostSnapshot,
	historicalServices map[string]struct{},
) []DetectedAnomaly {
	var anomalies []DetectedAnomaly
	for service, cost := range current.CostByService {
		if _, known := historicalServices[service]; known {
			continue
		}
		if cost < d.cfg.Filters.NewServiceMinimum {
			continue
		}
		anomalies = append(anomalies, DetectedAnomaly{
			Service:        service,
			CurrentCost:    round2(cost),
			BaselineCost:   0,
			AbsoluteChange: round2(cost),
			PercentChange:  100,
			StdDeviations:  0,
			Severity:       d.severity(cost, 100),
			Reason:         "New service detected",
			IsNewService:   true,
		})
	}
	return anomalies
}

func (d *AnomalyDetector) checkService(service string, currentCost float64, baseline Baseline) (DetectedAnomaly, bool) {
	if baseline.Mean == 0 {
		// All history filtered to zero despite enough samples: nothing
		// meaningful to compare against.
		return DetectedAnomaly{}, false
	}

	absoluteChange := currentCost - baseline.Mean
	percentChange := absoluteChange / baseline.Mean * 100

	stdDeviations := 0.0
	if baseline.Std > 0 {
		stdDeviations = math.Abs(absoluteChange) / baseline.Std
	}

	var reasons []string
	if math.Abs(absoluteChange) >= d.cfg.Thresholds.Absolute {
		reasons = append(reasons, fmt.Sprintf("Absolute change $%.2f >= $%g",
			math.Abs(absoluteChange), d.cfg.Thresholds.Absolute))
	}
	if math.Abs(percentChange) >= d.cfg.Thresholds.PercentChange {
		reasons = append(reasons, fmt.Sprintf("Percent change %.0f%% >= %g%%",
			math.Abs(percentChange), d.cfg.Thresholds.PercentChange))
	}
	if stdDeviations >= d.cfg.Thresholds.StdDeviations {
		reasons = append(reasons, fmt.Sprintf("%.1f std devs >= %g",
			stdDeviations, d.cfg.Thresholds.StdDeviations))
	}
	if len(reasons) == 0 {
		return DetectedAnomaly{}, false
	}

	return DetectedAnomaly{
		Service:        service,
		CurrentCost:    round2(currentCost),
		BaselineCost:   round2(baseline.Mean),
		AbsoluteChange: round2(absoluteChange),
		PercentChange:  round1(percentChange),
		StdDeviations:  round1(stdDeviations),
		Severity:       d.severity(absoluteChange, percentChange),
		Reason:         strings.Join(reasons, "; "),
	}, true
}

// severity grades by dollar and percent magnitude only. A service flagged
// purely by the standard-deviation test can still land at info: detection
// answers "worth mentioning", severity answers "how urgent".
func (d *AnomalyDetector) severity(absoluteChange, percentChange float64) Severity {
	switch {
	case math.Abs(absoluteChange) >= d.cfg.Thresholds.Absolute*2,
		math.Abs(percentChange) >= d.cfg.Thresholds.PercentChange*2:
		return SeverityCritical
	case math.Abs(absoluteChange) >= d.cfg.Thresholds.Absolute,
		math.Abs(percentChange) >= d.cfg.Thresholds.PercentChange:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// filterAcknowledged drops anomalies whose service has a standing
// acknowledgment. Pure name matching; magnitudes and dates are ignored.
func filterAcknowledged(anomalies []DetectedAnomaly, changes []storage.ChangeLog) []DetectedAnomaly {
	acknowledged := make(map[string]struct{}, len(changes))
	for _, change := range changes {
		acknowledged[change.Service] = struct{}{}
	}
	kept := anomalies[:0]
	for _, anomaly := range anomalies {
		if _, ok := acknowledged[anomaly.Service]; !ok {
			kept = append(kept, anomaly)
		}
	}
	return kept
}

// Summary renders a severity breakdown with total dollar impact.
func Summary(anomalies []DetectedAnomaly) string {
	if len(anomalies) == 0 {
		return "No anomalies detected."
	}

	counts := map[Severity]int{}
	var totalImpact float64
	for _, a := range anomalies {
		counts[a.Severity]++
		totalImpact += a.AbsoluteChange
	}

	parts := []string{fmt.Sprintf("Detected %d anomalies:", len(anomalies))}
	for _, sev := range []Severity{SeverityCritical, SeverityWarning, SeverityInfo} {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("  - %d %s", counts[sev], sev))
		}
	}
	parts = append(parts, fmt.Sprintf("Total impact: $%+.2f", totalImpact))
	return strings.Join(parts, "\n")
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestConsentMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewConsentMetrics(reg)

	metrics.IncDecision("marketing_email", "granted")
	metrics.IncDecision("marketing_email", "granted")
	metrics.IncPolicyViolation("terms_of_service")
	metrics.IncCacheLookup("hit")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "consent_decisions_total", "consent_type", "marketing_email"); err != nil {
		t.Fatalf("fetch decisions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected decisions=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "consent_policy_violations_total", "consent_type", "terms_of_service"); err != nil {
		t.Fatalf("fetch violations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected violations=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "consent_requirements_cache_total", "result", "hit"); err != nil {
		t.Fatalf("fetch cache lookups: %v", err)
	} else if got != 1 {
		t.Fatalf("expected cache hits=1, got %f", got)
	}
}

func TestConsentMetricsNilSafe(t *testing.T) {
	var metrics *ConsentMetrics
	metrics.IncDecision("x", "y")
	metrics.IncPolicyViolation("x")
	metrics.IncCacheLookup("miss")

	empty := NewConsentMetrics(nil)
	empty.IncDecision("x", "y")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ConsentMetrics records counters for policy engine outcomes.
type ConsentMetrics struct {
	decisions        *prometheus.CounterVec
	policyViolations *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
}

// NewConsentMetrics registers the consent metrics on the provided registerer.
func NewConsentMetrics(reg prometheus.Registerer) *ConsentMetrics {
	if reg == nil {
		return &ConsentMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consent_decisions_total",
		Help: "Consent decisions recorded, labelled by consent type and outcome.",
	}, []string{"consent_type", "outcome"})
	policyViolations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consent_policy_violations_total",
		Help: "Rejected attempts to withdraw a required consent.",
	}, []string{"consent_type"})
	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consent_requirements_cache_total",
		Help: "Requirements view cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(decisions, policyViolations, cacheHits)
	return &ConsentMetrics{
		decisions:        decisions,
		policyViolations: policyViolations,
		cacheHits:        cacheHits,
	}
}

// IncDecision counts one recorded consent decision.
func (m *ConsentMetrics) IncDecision(consentType, outcome string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(consentType), normalizeLabel(outcome)).Inc()
}

// IncPolicyViolation counts one rejected required-consent withdrawal.
func (m *ConsentMetrics) IncPolicyViolation(consentType string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(normalizeLabel(consentType)).Inc()
}

// IncCacheLookup counts one requirements cache lookup ("hit", "miss", "error").
func (m *ConsentMetrics) IncCacheLookup(result string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RulesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigforge_rules_processed_total",
			Help: "Total number of rule tasks processed, by final status",
		},
		[]string{"status"},
	)

	TestCasesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigforge_test_cases_generated_total",
			Help: "Total number of test cases generated, by label",
		},
		[]string{"label"},
	)

	ValidationMismatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigforge_validation_mismatches_total",
			Help: "Total number of validation mismatches, by reason",
		},
		[]string{"reason"},
	)

	SeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigforge_seed_requests_total",
			Help: "Total number of seed acquisition attempts, by outcome",
		},
		[]string{"outcome"},
	)

	RuleTaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sigforge_rule_task_duration_seconds",
			Help:    "Time taken to process one rule task end to end",
			Buckets: prometheus.DefBuckets,
		},
	)
)

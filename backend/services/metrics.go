package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerMetric       = promauto.NewCounter(prometheus.CounterOpts{Name: "revx_registrations", Help: "User registrations"})
	projectCreateMetric  = promauto.NewCounter(prometheus.CounterOpts{Name: "revx_project_creates", Help: "Projects created"})
	projectDeleteMetric  = promauto.NewCounter(prometheus.CounterOpts{Name: "revx_project_deletes", Help: "Projects deleted"})
	reviewAddMetric      = promauto.NewCounter(prometheus.CounterOpts{Name: "revx_review_adds", Help: "Reviews added"})
	contributorAddMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "revx_contributor_adds", Help: "Contributors added"})

	projectGetMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "revx_project_get", Help: "Project detail reads"})
)

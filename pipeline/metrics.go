package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provreg_validations_total",
		Help: "Validation pipeline outcomes by terminal stage.",
	}, []string{"outcome", "stage"})

	connectorResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provreg_connector_resolutions_total",
		Help: "Connector reference resolutions by outcome.",
	}, []string{"outcome"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	DelegatesProvisionedTotal prometheus.Counter
	DelegatesDeactivatedTotal prometheus.Counter
	ProvisionFailureTotal     prometheus.Counter
	ActiveDelegatesGauge      prometheus.Gauge
	LoginSuccessTotal         prometheus.Counter
	LoginFailureTotal         prometheus.Counter
	PatientWritesTotal        prometheus.Counter
)

// InitCustomMetrics initializes and registers custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	DelegatesProvisionedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_delegates_provisioned_total",
		Help: "Total number of delegate accounts provisioned.",
	})
	DelegatesDeactivatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_delegates_deactivated_total",
		Help: "Total number of delegate accounts deactivated.",
	})
	ProvisionFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_provision_failure_total",
		Help: "Total number of failed delegate provisioning attempts.",
	})
	ActiveDelegatesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "praxis_active_delegates_gauge",
		Help: "Current number of active delegate accounts.",
	})
	LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_logins_success_total",
		Help: "Total number of successful logins.",
	})
	LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_logins_failure_total",
		Help: "Total number of failed logins.",
	})
	PatientWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "praxis_patient_writes_total",
		Help: "Total number of patient record writes.",
	})

	// Register metrics
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}
	collectors := map[string]prometheus.Collector{
		"DelegatesProvisionedTotal": DelegatesProvisionedTotal,
		"DelegatesDeactivatedTotal": DelegatesDeactivatedTotal,
		"ProvisionFailureTotal":     ProvisionFailureTotal,
		"ActiveDelegatesGauge":      ActiveDelegatesGauge,
		"LoginSuccessTotal":         LoginSuccessTotal,
		"LoginFailureTotal":         LoginFailureTotal,
		"PatientWritesTotal":        PatientWritesTotal,
	}
	for name, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}

// Package metrics exposes the Prometheus instruments of the transaction
// service.
package metrics

import (
	"time"

	"github.com/eaglebank/wallet/shared/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	transfers     *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	escalations   prometheus.Counter
	backlog       *prometheus.GaugeVec
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_transfers_total",
			Help: "Money movements by kind and outcome",
		}, []string{"kind", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_transfer_duration_seconds",
			Help:    "Time spent driving a money movement within one request",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"kind"}),
		compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_compensations_total",
			Help: "Refund attempts for debited senders by result",
		}, []string{"result"}),
		escalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_compensation_escalations_total",
			Help: "Sagas handed to an operator because the sender could not be refunded",
		}),
		backlog: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wallet_saga_backlog",
			Help: "Sagas waiting in each unfinished state",
		}, []string{"state"}),
	}
}

func (m *Metrics) TransferFinished(kind models.TransferKind, outcome string, started time.Time) {
	m.transfers.WithLabelValues(string(kind), outcome).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Compensation(ok bool) {
	result := "failed"
	if ok {
		result = "refunded"
	}
	m.compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) Escalated() { m.escalations.Inc() }

// SetBacklog replaces the backlog gauge with counts. States missing from
// counts are reported as zero.
func (m *Metrics) SetBacklog(counts map[models.SagaState]int) {
	for _, state := range []models.SagaState{
		models.SagaPending, models.SagaDebitUnknown, models.SagaDebited, models.SagaCreditUnknown,
		models.SagaCredited, models.SagaCompensating, models.SagaCompensated, models.SagaEscalated,
	} {
		m.backlog.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

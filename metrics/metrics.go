package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersByState counts orders currently queued, in progress or completed.
	OrdersByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffcentral_orders",
		Help: "Orders held by the order engine by list",
	}, []string{"list"})

	OrdersFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffcentral_orders_finished_total",
		Help: "Orders that reached a terminal state",
	}, []string{"state", "type"})

	// RetryQueue holds the number of steps waiting for a resource.
	RetryQueue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffcentral_retry_queue_steps",
		Help: "Steps waiting in the navigation and manufacture retry lists",
	}, []string{"kind"})

	ChargePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ffcentral_charge_pending_vehicles",
		Help: "Vehicles waiting for a charger",
	})

	DevicesConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffcentral_devices_connected",
		Help: "Connected vehicles and modules",
	}, []string{"kind"})

	CommandsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffcentral_commands_sent_total",
		Help: "Orders and instant actions published to devices",
	}, []string{"kind"})

	PublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffcentral_publish_failures_total",
		Help: "Publishes rejected by the message bus",
	}, []string{"kind"})

	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ffcentral_outbox_pending",
		Help: "Messages waiting in the publish outbox",
	})

	// StepDuration records how long a dispatched step took to finish.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ffcentral_step_duration_seconds",
		Help:    "Time from dispatch to completion per step kind",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"kind"})
)

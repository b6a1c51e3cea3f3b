// Package metrics exports vault activity to Prometheus from a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

const namespace = "riskvault"

type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	deposits      prometheus.Counter
	withdrawals   prometheus.Counter
	refreshes     prometheus.Counter
	rebalances    prometheus.Counter
	configChanges *prometheus.CounterVec
	rejected      *prometheus.CounterVec

	totalDeposits prometheus.Gauge
	price         prometheus.Gauge
	volatility    prometheus.Gauge
	allocation    *prometheus.GaugeVec

	requestDuration *prometheus.HistogramVec
}

func NewCollector(logger *zap.Logger) *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		logger:   logger,
		deposits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Accepted deposits.",
		}),
		withdrawals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Accepted withdrawals.",
		}),
		refreshes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volatility_refreshes_total",
			Help:      "Successful volatility refreshes.",
		}),
		rebalances: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalances_total",
			Help:      "Committed rebalances.",
		}),
		configChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_changes_total",
			Help:      "Owner configuration changes by field.",
		}, []string{"field"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_operations_total",
			Help:      "Rejected vault operations by operation and reason.",
		}, []string{"op", "reason"}),
		totalDeposits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_deposits",
			Help:      "Sum of all account balances in token base units.",
		}),
		price: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sample_price",
			Help:      "Price of the most recent recorded sample.",
		}),
		volatility: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volatility_bps",
			Help:      "Current volatility index in basis points.",
		}),
		allocation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allocation_bps",
			Help:      "Committed risk allocation in basis points.",
		}, []string{"tier"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// Publish updates counters and gauges from a committed vault event.
func (c *Collector) Publish(e domain.Event) error {
	switch e.Type {
	case domain.EventDeposited:
		c.deposits.Inc()
		c.setTotal(e.TotalDeposits)
		c.setPrice(e.Price)
	case domain.EventWithdrawn:
		c.withdrawals.Inc()
		c.setTotal(e.TotalDeposits)
		c.setPrice(e.Price)
	case domain.EventVolatilityUpdated:
		c.refreshes.Inc()
		c.volatility.Set(float64(e.VolatilityBps))
		c.setPrice(e.Price)
	case domain.EventRebalanceTriggered:
		c.rebalances.Inc()
		if e.Allocation != nil {
			c.setAllocation(*e.Allocation)
		}
	case domain.EventConfigUpdated:
		c.configChanges.WithLabelValues(e.Field).Inc()
	}
	return nil
}

// SetState seeds the gauges, used after restoring a vault.
func (c *Collector) SetState(total string, volatility domain.Bps, alloc domain.Allocation) {
	c.setTotal(total)
	c.volatility.Set(float64(volatility))
	c.setAllocation(alloc)
}

func (c *Collector) ObserveRejected(op string, err error) {
	c.rejected.WithLabelValues(op, domain.Code(err)).Inc()
}

func (c *Collector) ObserveRequest(route string, code int, d time.Duration) {
	c.requestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) setTotal(total string) {
	if total == "" {
		return
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		c.logger.Warn("unparsable total deposits", zap.String("value", total), zap.Error(err))
		return
	}
	c.totalDeposits.Set(d.InexactFloat64())
}

func (c *Collector) setPrice(p domain.Price) {
	if p <= 0 {
		return
	}
	c.price.Set(p.Decimal().InexactFloat64())
}

func (c *Collector) setAllocation(a domain.Allocation) {
	c.allocation.WithLabelValues("conservative").Set(float64(a.ConservativeBps))
	c.allocation.WithLabelValues("moderate").Set(float64(a.ModerateBps))
	c.allocation.WithLabelValues("aggressive").Set(float64(a.AggressiveBps))
}

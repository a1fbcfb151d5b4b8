package engine

import (
	"ffcentral/metrics"
	"ffcentral/pairing"
	"ffcentral/protocol"
)

// sweep retries everything that waits for a resource and refreshes gauges.
func (e *Engine) sweep() {
	e.orders.RetriggerFTSSteps()
	e.orders.RetriggerModuleSteps()
	e.charging.RetriggerChargeOrders()
	if err := e.charging.FreeBlockedChargers(false); err != nil {
		e.logFn("engine: free blocked chargers: %v", err)
	}
	e.charging.ResetBusyChargersThatAreEmpty()
	e.checkBatteries()
	e.updateMetrics()
	e.nodeState.Update(pairing.TakeSnapshot(e.fts, e.modules), e.nav.Blocks())
}

// checkBatteries sends idle vehicles with a low battery to a charger.
func (e *Engine) checkBatteries() {
	for _, rec := range e.fts.GetAllReadyUnassigned() {
		if rec.Charging || rec.BatteryPercent == nil {
			continue
		}
		state := &protocol.FtsState{BatteryState: &protocol.BatteryState{Percentage: rec.BatteryPercent}}
		if !e.charging.IsBatteryLow(state) {
			continue
		}
		if err := e.charging.TriggerChargeOrderForFts(rec.SerialNumber, false); err != nil {
			e.logFn("engine: charge %s: %v", rec.SerialNumber, err)
		}
	}
}

func (e *Engine) updateMetrics() {
	queued, active, completed := e.orders.Counts()
	metrics.OrdersByState.WithLabelValues("queued").Set(float64(queued))
	metrics.OrdersByState.WithLabelValues("active").Set(float64(active))
	metrics.OrdersByState.WithLabelValues("completed").Set(float64(completed))

	nav, module := e.orders.RetryCounts()
	metrics.RetryQueue.WithLabelValues("navigation").Set(float64(nav))
	metrics.RetryQueue.WithLabelValues("manufacture").Set(float64(module))
	metrics.ChargePending.Set(float64(len(e.charging.PendingSerials())))

	var fts, modules int
	for _, rec := range e.fts.All() {
		if rec.Connected {
			fts++
		}
	}
	for _, rec := range e.modules.All() {
		if rec.Connected && !rec.Passive {
			modules++
		}
	}
	metrics.DevicesConnected.WithLabelValues(protocol.KindFts).Set(float64(fts))
	metrics.DevicesConnected.WithLabelValues(protocol.KindModule).Set(float64(modules))
}

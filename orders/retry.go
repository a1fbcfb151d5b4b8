package orders

import "log"

func addRef(list []stepRef, ref stepRef) []stepRef {
	for _, r := range list {
		if r == ref {
			return list
		}
	}
	return append(list, ref)
}

func (m *Manager) queueNav(o *Order, s *Step) {
	m.navRetry = addRef(m.navRetry, stepRef{orderID: o.OrderID, stepID: s.ID})
}

func (m *Manager) queueModule(o *Order, s *Step) {
	m.moduleRetry = addRef(m.moduleRetry, stepRef{orderID: o.OrderID, stepID: s.ID})
}

func (m *Manager) dropRetries(orderID string) {
	keep := func(list []stepRef) []stepRef {
		out := list[:0]
		for _, r := range list {
			if r.orderID != orderID {
				out = append(out, r)
			}
		}
		return out
	}
	m.navRetry = keep(m.navRetry)
	m.moduleRetry = keep(m.moduleRetry)
}

// RetriggerFTSSteps retries every held navigation step that is still needed.
func (m *Manager) RetriggerFTSSteps() {
	m.retrigger(&m.navRetry)
}

// RetriggerModuleSteps retries every held manufacture step that is still needed.
func (m *Manager) RetriggerModuleSteps() {
	m.retrigger(&m.moduleRetry)
}

func (m *Manager) retrigger(queue *[]stepRef) {
	refs := *queue
	*queue = nil
	for _, r := range refs {
		o := m.activeOrder(r.orderID)
		if o == nil {
			continue
		}
		s := o.Step(r.stepID)
		if s == nil || s.State != Enqueued || !o.dependencyMet(s) {
			continue
		}
		if err := m.triggerStep(o, s); err != nil {
			log.Printf("orders: retry step %s of %s: %v", s.ID, o.OrderID, err)
		}
	}
}

// RetryCounts returns the lengths of the navigation and manufacture retry lists.
func (m *Manager) RetryCounts() (nav, module int) {
	return len(m.navRetry), len(m.moduleRetry)
}

// Reconcile queues every dispatchable step of an active order for retry, so
// steps stranded by a restart or a lost message get picked up by the sweeps.
func (m *Manager) Reconcile() {
	for _, o := range m.active {
		for _, s := range o.Steps {
			if s.State != Enqueued || !o.dependencyMet(s) {
				continue
			}
			if s.Type == Navigation {
				m.queueNav(o, s)
			} else {
				m.queueModule(o, s)
			}
		}
	}
}

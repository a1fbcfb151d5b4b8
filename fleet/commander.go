// Package fleet publishes orders and instant actions to vehicles and modules.
package fleet

import (
	"fmt"
	"time"

	"ffcentral/metrics"
	"ffcentral/protocol"

	"github.com/google/uuid"
)

// Publisher is the JSON send side of the messaging client.
type Publisher interface {
	PublishJSON(topic string, v any, qos byte, retain bool) error
}

// Commander sends device commands directly, without the outbox, so callers
// can compensate when a publish fails.
type Commander struct {
	pub Publisher
	now func() time.Time
}

func NewCommander(pub Publisher) *Commander {
	return &Commander{pub: pub, now: time.Now}
}

const commandQoS = 2

func (c *Commander) send(kind, topic string, v any) error {
	if err := c.pub.PublishJSON(topic, v, commandQoS, false); err != nil {
		metrics.PublishFailuresTotal.WithLabelValues("command").Inc()
		return fmt.Errorf("publish %s to %s: %w", kind, topic, err)
	}
	metrics.CommandsSentTotal.WithLabelValues(kind).Inc()
	return nil
}

func (c *Commander) SendFtsOrder(order *protocol.FtsOrder) error {
	return c.send("fts_order", protocol.FtsOrderTopic(order.SerialNumber), order)
}

func (c *Commander) SendModuleOrder(order *protocol.ModuleOrder) error {
	return c.send("module_order", protocol.ModuleOrderTopic(order.SerialNumber), order)
}

func (c *Commander) SendFtsInstantAction(serial string, actions ...protocol.InstantAction) error {
	return c.sendInstant(protocol.KindFts, serial, actions)
}

func (c *Commander) SendModuleInstantAction(serial string, actions ...protocol.InstantAction) error {
	return c.sendInstant(protocol.KindModule, serial, actions)
}

func (c *Commander) sendInstant(kind, serial string, actions []protocol.InstantAction) error {
	msg := protocol.InstantActions{
		Timestamp:    c.now().UTC(),
		SerialNumber: serial,
		Actions:      actions,
	}
	return c.send("instant_action", protocol.DeviceTopic(kind, serial, protocol.LeafInstantAction), msg)
}

// Instant builds an instant action with a fresh id.
func Instant(actionType string) protocol.InstantAction {
	return protocol.InstantAction{ActionType: actionType, ActionID: uuid.New().String()}
}

// RequestFactsheet asks a device that just came online to describe itself.
func (c *Commander) RequestFactsheet(kind, serial string) error {
	return c.sendInstant(kind, serial, []protocol.InstantAction{Instant(protocol.InstantFactsheetRequest)})
}

// ResetDevice sends the reset instant action.
func (c *Commander) ResetDevice(kind, serial string) error {
	return c.sendInstant(kind, serial, []protocol.InstantAction{Instant(protocol.InstantReset)})
}

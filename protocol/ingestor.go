package protocol

import (
	"encoding/json"
	"log"
)

// MessageHandler defines callbacks for every inbound message kind.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	// Devices -> central
	HandleFtsState(serial string, p *FtsState)
	HandleFtsConnection(serial string, p *Connection)
	HandleModuleState(serial string, p *ModuleState)
	HandleModuleConnection(serial string, p *Connection)

	// Operators -> central
	HandleOrderRequest(p *OrderRequest)
	HandleOrderCancel(p *OrderCancel)
	HandleReset(p *ResetRequest)
	HandleCharge(p *ChargeRequest)
	HandleLayout(p *Layout)
	HandlePairFts(p *PairFts)
}

// Ingestor decodes raw bus messages and dispatches them by topic.
type Ingestor struct {
	handler MessageHandler
}

func NewIngestor(handler MessageHandler) *Ingestor {
	return &Ingestor{handler: handler}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(topic string, data []byte) {
	switch topic {
	case TopicOrderRequest:
		decodeAndCall(topic, data, ing.handler.HandleOrderRequest)
		return
	case TopicOrderCancel:
		decodeAndCall(topic, data, ing.handler.HandleOrderCancel)
		return
	case TopicSetReset:
		decodeAndCall(topic, data, ing.handler.HandleReset)
		return
	case TopicSetCharge:
		decodeAndCall(topic, data, ing.handler.HandleCharge)
		return
	case TopicSetLayout:
		decodeAndCall(topic, data, ing.handler.HandleLayout)
		return
	case TopicPairFts:
		decodeAndCall(topic, data, ing.handler.HandlePairFts)
		return
	}

	kind, serial, leaf, ok := ParseDeviceTopic(topic)
	if !ok {
		log.Printf("protocol: unhandled topic %s", topic)
		return
	}
	switch {
	case kind == KindFts && leaf == LeafState:
		decodeDeviceAndCall(topic, serial, data, ing.handler.HandleFtsState)
	case kind == KindFts && leaf == LeafConnection:
		decodeDeviceAndCall(topic, serial, data, ing.handler.HandleFtsConnection)
	case kind == KindModule && leaf == LeafState:
		decodeDeviceAndCall(topic, serial, data, ing.handler.HandleModuleState)
	case kind == KindModule && leaf == LeafConnection:
		decodeDeviceAndCall(topic, serial, data, ing.handler.HandleModuleConnection)
	default:
		log.Printf("protocol: unhandled device topic %s", topic)
	}
}

// decodeAndCall unmarshals the payload and calls the handler method.
func decodeAndCall[T any](topic string, data []byte, fn func(*T)) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("protocol: payload decode error for %s: %v", topic, err)
		return
	}
	fn(&p)
}

// decodeDeviceAndCall is decodeAndCall for device topics, passing the serial taken from the topic.
func decodeDeviceAndCall[T any](topic, serial string, data []byte, fn func(string, *T)) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("protocol: payload decode error for %s: %v", topic, err)
		return
	}
	fn(serial, &p)
}

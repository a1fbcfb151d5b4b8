package protocol

import "strings"

// Central topics.
const (
	TopicOrderRequest   = "ccu/order/request"
	TopicOrderResponse  = "ccu/order/response"
	TopicOrderCancel    = "ccu/order/cancel"
	TopicOrderActive    = "ccu/order/active"
	TopicOrderCompleted = "ccu/order/completed"
	TopicSetReset       = "ccu/set/reset"
	TopicSetCharge      = "ccu/set/charge"
	TopicSetLayout      = "ccu/set/layout"
	TopicPairFts        = "ccu/pairing/pair_fts"
	TopicPairingState   = "ccu/pairing/state"
)

// Device families in topic paths.
const (
	KindFts    = "fts"
	KindModule = "module"
)

// Device topic leaves.
const (
	LeafState         = "state"
	LeafConnection    = "connection"
	LeafOrder         = "order"
	LeafInstantAction = "instantAction"
	LeafFactsheet     = "factsheet"
)

const deviceVersion = "v1/ff"

// DeviceTopic builds "<kind>/v1/ff/<serial>/<leaf>".
func DeviceTopic(kind, serial, leaf string) string {
	return kind + "/" + deviceVersion + "/" + serial + "/" + leaf
}

func FtsOrderTopic(serial string) string         { return DeviceTopic(KindFts, serial, LeafOrder) }
func FtsInstantActionTopic(serial string) string { return DeviceTopic(KindFts, serial, LeafInstantAction) }
func ModuleOrderTopic(serial string) string      { return DeviceTopic(KindModule, serial, LeafOrder) }
func ModuleInstantActionTopic(serial string) string {
	return DeviceTopic(KindModule, serial, LeafInstantAction)
}

// ParseDeviceTopic splits a device topic into its kind, serial and leaf.
func ParseDeviceTopic(topic string) (kind, serial, leaf string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[1] != "v1" || parts[2] != "ff" {
		return "", "", "", false
	}
	if parts[0] != KindFts && parts[0] != KindModule {
		return "", "", "", false
	}
	if parts[3] == "" {
		return "", "", "", false
	}
	return parts[0], parts[3], parts[4], true
}

// Subscriptions lists every inbound topic filter the central unit listens on.
func Subscriptions() []string {
	return []string{
		DeviceTopic(KindFts, "+", LeafState),
		DeviceTopic(KindFts, "+", LeafConnection),
		DeviceTopic(KindModule, "+", LeafState),
		DeviceTopic(KindModule, "+", LeafConnection),
		TopicOrderRequest,
		TopicOrderCancel,
		TopicSetReset,
		TopicSetCharge,
		TopicSetLayout,
		TopicPairFts,
	}
}

// TopicMatches reports whether topic matches an MQTT-style filter with + and # wildcards.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

package handler

import "strings"

// messageTypes is the set of OpenFlow message types a "message" handler
// may name. Multipart types use the REQUEST.x and REPLY.x forms.
var messageTypes = map[string]bool{
	"CHANNEL_UP":               true,
	"CHANNEL_DOWN":             true,
	"CHANNEL_ALERT":            true,
	"HELLO":                    true,
	"ERROR":                    true,
	"ECHO_REQUEST":             true,
	"ECHO_REPLY":               true,
	"EXPERIMENTER":             true,
	"FEATURES_REQUEST":         true,
	"FEATURES_REPLY":           true,
	"GET_CONFIG_REQUEST":       true,
	"GET_CONFIG_REPLY":         true,
	"SET_CONFIG":               true,
	"PACKET_IN":                true,
	"FLOW_REMOVED":             true,
	"PORT_STATUS":              true,
	"PACKET_OUT":               true,
	"FLOW_MOD":                 true,
	"GROUP_MOD":                true,
	"PORT_MOD":                 true,
	"TABLE_MOD":                true,
	"BARRIER_REQUEST":          true,
	"BARRIER_REPLY":            true,
	"QUEUE_GET_CONFIG_REQUEST": true,
	"QUEUE_GET_CONFIG_REPLY":   true,
	"ROLE_REQUEST":             true,
	"ROLE_REPLY":               true,
	"GET_ASYNC_REQUEST":        true,
	"GET_ASYNC_REPLY":          true,
	"SET_ASYNC":                true,
	"METER_MOD":                true,
	"ROLE_STATUS":              true,
	"TABLE_STATUS":             true,
	"REQUESTFORWARD":           true,
	"BUNDLE_CONTROL":           true,
	"BUNDLE_ADD_MESSAGE":       true,
}

var multipartTypes = map[string]bool{
	"DESC":            true,
	"FLOW_DESC":       true,
	"AGGREGATE_STATS": true,
	"TABLE_STATS":     true,
	"PORT_STATS":      true,
	"QUEUE_STATS":     true,
	"GROUP_STATS":     true,
	"GROUP_DESC":      true,
	"GROUP_FEATURES":  true,
	"METER_STATS":     true,
	"METER_CONFIG":    true,
	"METER_FEATURES":  true,
	"TABLE_FEATURES":  true,
	"PORT_DESC":       true,
	"TABLE_DESC":      true,
	"QUEUE_DESC":      true,
	"FLOW_MONITOR":    true,
	"EXPERIMENTER":    true,
}

// IsMessageType reports whether typ names an OpenFlow message.
func IsMessageType(typ string) bool {
	typ = strings.ToUpper(typ)
	if messageTypes[typ] {
		return true
	}
	for _, prefix := range []string{"REQUEST.", "REPLY."} {
		if rest, ok := strings.CutPrefix(typ, prefix); ok {
			return multipartTypes[rest]
		}
	}
	return false
}

// Package handler routes events to application callbacks.
//
// Handlers live in one bucket per kind: "message" for OpenFlow messages and
// "event" for everything else. Within a bucket handlers run in subscription
// order and the first one that matches wins unless it returns FallThrough.
package handler

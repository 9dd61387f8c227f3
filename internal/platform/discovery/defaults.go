// Package discovery centralizes internal service-discovery conventions.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceTimeline is the timeline gRPC service identity.
	ServiceTimeline = "timeline"
	// ServiceTimelineMetrics is the timeline Prometheus endpoint identity.
	ServiceTimelineMetrics = "timeline-metrics"
	// ServiceKafka is the change feed broker identity.
	ServiceKafka = "kafka"
)

var grpcPorts = map[string]int{
	ServiceTimeline: 8095,
}

var httpPorts = map[string]int{
	ServiceTimelineMetrics: 9095,
}

var tcpPorts = map[string]int{
	ServiceKafka: 9092,
}

// DefaultGRPCAddr returns the canonical in-network gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// DefaultHTTPAddr returns the canonical in-network HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// DefaultTCPAddr returns the canonical in-network address of a raw TCP
// dependency such as the Kafka broker.
func DefaultTCPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), tcpPorts)
}

// DefaultPort returns the conventional listen port of a gRPC or HTTP service.
func DefaultPort(service string) int {
	service = strings.TrimSpace(service)
	if port, ok := grpcPorts[service]; ok {
		return port
	}
	return httpPorts[service]
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}

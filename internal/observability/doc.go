// Package observability builds the zap loggers and Prometheus collectors
// shared by the governance service and the admin API.
package observability

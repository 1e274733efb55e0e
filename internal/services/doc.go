// Package services holds application services that sit between the HTTP
// handlers and the stores and are not access gates themselves.
//
// HealthService backs the health, readiness, liveness and version
// endpoints. Readiness pings the record store and loads the license, so a
// deployment whose database is unreachable reports not_ready.
package services

// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for hioload-tcp peers.
//
// Provides:
//   - ServiceConfig with defaults and validation for job-queue services
//   - ServiceStats snapshots produced by running services
//   - Prometheus collectors over services and session registries
//   - Debug probe registration and state export
//
// This package is cross-platform and build-tag-partitioned as needed.
package control

// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// CLI и движок используют единый формат логирования;
// метрики экспортируются на /metrics endpoint по запросу.
package telemetry

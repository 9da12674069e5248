// Package events публикует события жизненного цикла выполнения в RabbitMQ.
//
// Структура:
//   - sink.go       — интерфейс Sink, типы событий, NopSink
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchange, queues, bindings
//   - publisher.go  — публикация событий
//
// Типы событий:
//   - run.started    — run начал выполняться
//   - run.finished   — run завершён (SUCCEEDED/FAILED)
//   - node.started   — узел начал выполняться
//   - node.finished  — узел завершён
//
// Exchange:
//   - loom.events — все события; routing key "runs" или "nodes"
//
// Движок публикует события через Sink, который заполняет
// инструментирующая обёртка узлов. Если RabbitMQ не сконфигурирован,
// используется NopSink — выполнение никогда не зависит от брокера.
package events

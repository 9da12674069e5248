// Package cli реализует инструмент командной строки Loom.
//
// # Обзор
//
// CLI запускает движок in-process: команда run компилирует IR
// и выполняет его прямо в процессе утилиты, без отдельного сервера.
// Определения workflow берутся из JSON файлов или из PostgreSQL.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: loom run wf.json --json | jq .
//
// ## Commands
//
//   - run:      запуск workflow из файла или БД, с метриками,
//     событиями RabbitMQ и архивированием run
//   - validate: статическая проверка определения (структура, шаблоны,
//     циклы вложенности)
//   - workflow: push, get, list, delete, runs — версионированные
//     определения в PostgreSQL
//   - types:    зарегистрированные типы узлов и их интерфейсы
//
// Каждая команда создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую outputFn — замыкание для ленивого создания Output после
// парсинга PersistentFlags.
package cli

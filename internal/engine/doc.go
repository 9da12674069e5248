// Package engine содержит компилятор и движок выполнения workflow.
//
// Включает:
//   - validate.go — структурная проверка IR и статическая проверка шаблонов
//   - template.go — разрешение шаблонных ссылок ${base.seg.seg}
//   - store.go    — SharedStore с namespace по узлам и режимами наследования
//   - compiler.go — компиляция IR в исполняемый граф, рекурсия вложенных workflow
//   - wrapper.go  — цепочка обёрток узла (instrumentation, namespacing, template)
//   - group.go    — параллельные группы с ограничением одновременности
//   - runner.go   — последовательный прогон графа по таблице переходов
//
// Компиляция детерминирована и отделена от выполнения: все структурные
// ошибки, циклы ссылок и превышение глубины вложенности обнаруживаются
// до запуска первого узла. Шаблоны разрешаются только в момент
// выполнения узла.
package engine

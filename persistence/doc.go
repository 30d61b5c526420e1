// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package persistence stores finished workflow runs so they can be listed and
inspected after the process exits.

A RunRecord is built from a run's ExecutionHistory with FromHistory and saved
through a RunStore. Three backends are provided:

  - MemoryRunStore for tests and one-shot CLI runs
  - GormRunStore for sqlite, postgres or mysql through gorm
  - RedisRunStore for shared history with optional retention

Open selects the backend from config.HistoryConfig. ListRuns always returns
the newest runs first.
*/
package persistence

// Package task defines the pluggable inference task contract, the registry
// that orders tasks for execution, and the cleaning-task state that tasks
// update through structured deltas.
//
// Registry ordering is deliberately a two-phase scheme, not a topological
// sort: tasks with no declared dependencies run first (the parallel phase),
// tasks declaring any dependency run afterwards in registration order (the
// serial phase). A task chaining through a dependency two levels deep will
// see a missing context entry rather than correct data; callers relying on
// chained dependencies must flatten their declarations.
package task

// Package saga coordinates multi-step workflows whose steps have side
// effects that must be undone when a later step fails.
//
// A saga is declared with a Builder as an ordered sequence of stages:
// Append adds one sequential step, AppendParallel a group of steps that
// run concurrently. Every step pairs a forward action with a compensating
// action. Build freezes the declaration into a Definition, and an
// Executor runs one instance of it against a CheckpointStore.
//
// Completed forward actions are checkpointed under idempotency keys, so
// re-running a saga after a crash replays stored results instead of
// executing again. When a step fails, the executor compensates every
// completed step in reverse order with per-step retry budgets. A step may
// also pause the whole saga for external approval by returning
// RequestApproval from its forward action; Resume continues from where it
// stopped once a decision arrives.
//
// Checkpoint stores are provided for memory, local files, Redis, and
// PostgreSQL. Execution can be observed through lifecycle hooks, slog
// logging, and OpenTelemetry metrics.
package saga

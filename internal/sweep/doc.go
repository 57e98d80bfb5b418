// Package sweep implements the trial-search coordinator. It owns trial
// scheduling: sampling hyperparameter assignments, launching trial
// evaluations across a bounded worker pool, recording every state
// transition in persistent study storage, pruning unpromising trials,
// and resuming an interrupted study across process invocations.
package sweep

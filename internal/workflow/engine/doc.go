// Package engine executes a work item's node graph. Nodes run in dependency
// waves through the runner, dependents of failed nodes are skipped, and the
// resulting state is persisted as the work item's outcome artifact so a later
// process can inspect it.
package engine

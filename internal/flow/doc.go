// Package flow executes user-authored flows.
//
// A flow is a linear list of actions. Each action resolves its parameters
// against the live variables of the triggering interaction and issues at
// most one platform call. Failures are recorded per action and never stop
// the remaining actions; only a Stop action or the action limit does.
package flow

// Package dispatch delivers classified transitions to whoever can handle them.
//
// A Dispatcher is either ATTACHED (a live scripting session exists) or
// DETACHED. Each event takes exactly one of two paths:
//
//   - Immediate: attached and the host process is in the foreground. The
//     event is fanned out synchronously on the LocalChannel.
//   - Deferred: anything else. The event becomes a HeadlessTask run by the
//     TaskRunner under a time budget.
//
// Events are handled one at a time, in arrival order, by Run.
package dispatch

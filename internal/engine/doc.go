// Package engine implements the cascade reactor runtime.
//
// A Reactor owns named Inputs, Outputs and Reactions. An Output is linked
// to at most one Input and vice versa; each Input owns a bounded queue of
// operand stacks whose OverflowPolicy decides what happens when a message
// arrives at a full queue. A Reaction is a body guarded by a set of the
// reactor's inputs and is ready when all of them hold a message.
//
// ARCHITECTURE:
//
// Cranking:
// Crank evaluates a reactor's reactions in registration order and fires
// the first ready one (or each ready one under AllReady). Cranks of one
// reactor never overlap, whichever goroutines issue them.
//
// Scheduling:
// Every successful enqueue wakes the receiving reactor. The Scheduler keeps
// one TaskStream per reactor and hands streams with pending work to Pump
// workers locked, so a reactor is cranked by at most one worker at a time.
// Streams are served FIFO; a stream that gains work while held rejoins the
// back of the line.
//
// Lifecycle:
// UNSTARTED -> STARTING -> STARTED -> STOPPING -> STOPPED, never skipping a
// state. Engine.Start sets up every new reactor before starting any of
// them. Engine.Stop moves reactors to STOPPING, waits until each reports
// destroyable and then destroys them together.
//
// Ownership:
// Holding a *operand.Stack means holding one reference. Sending transfers
// the sender's reference to the receiving queue; multi-output sends retain
// once per extra receiver. A failed send leaves the reference with the
// sender. Stacks an overflow policy discards are released by the input.
//
// Errors:
// Operational conditions return *RuntimeError values with a Code. Misuse
// that indicates a bug in the embedding program panics with a
// *ContractViolation. Errors and panics from reaction bodies and lifecycle
// callbacks go to the reactor's ExceptionHandler.
package engine

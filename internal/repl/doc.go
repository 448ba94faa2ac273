// Package repl owns the evaluation session.
//
// Ownership boundary:
// - the one accepted driver connection
// - import/reload state of the target module
// - response composition for each load
//
// Lifecycle order:
// - awaiting_connection -> ready -> terminated
//
// - ready loops on inbound messages; a load is one atomic step inside it.
//
// - terminated is reached on EXIT, on peer close, or on context cancellation.
//
// repl does not compile anything and does not receive artifacts over the
// wire; the driver writes them to disk before sending LOAD.
package repl

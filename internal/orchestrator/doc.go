// Package orchestrator sequences the multi-step transaction protocols of
// the presale: input validation, deferred wallet connection, allowance
// management with automatic approval, submission, confirmation, and the
// follow-up state refresh. A single in-flight operation is enforced
// through the session state.
package orchestrator

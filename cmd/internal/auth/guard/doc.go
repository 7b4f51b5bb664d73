// Package guard defines what every authentication guard shares: the Guard
// contract, request-scoped attempt State, the error taxonomy and the event
// model with its sinks.
package guard

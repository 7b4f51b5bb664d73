// Package auth wires named guards together.
//
// A Manager holds the process-wide guard factories and the default guard
// name. For every request it hands out an Authenticator, which constructs
// each guard at most once and can try several guards in order.
package auth

// Package basic implements HTTP Basic authentication (RFC 7617) against a
// UserProvider. It is stateless: every request carries the credentials.
package basic

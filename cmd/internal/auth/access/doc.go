// Package access implements the opaque access token guard used by API
// clients presenting "Authorization: Bearer <series>.<value>".
package access

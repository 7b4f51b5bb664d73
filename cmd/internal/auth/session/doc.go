// Package session implements the session guard: login state kept in a
// server-side session under "auth_<guard>", plus optional remember-me
// recall through a long-lived cookie carrying an opaque token.
//
// Remember-me tokens rotate on every successful recall, so a stolen cookie
// is good for at most one use. Session data lives behind Backend (memory,
// Redis, PostgreSQL); the session id travels in a securecookie-encoded
// cookie managed by Middleware.
package session

// Package token provides the one-way digest used to store token secrets.
//
// Token values already carry full entropy, so a fast digest is enough:
// - SHA-256(value) when no key is configured (dev mode).
// - HMAC-SHA256(value, key) when WARDEN_TOKEN_HMAC_KEY is set.
//
// Output is always 64-char lowercase hex and is compared in constant time.
package token

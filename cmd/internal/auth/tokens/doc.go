// Package tokens implements warden's opaque secret credentials.
//
// A Token pairs a public random series with a secret random value. The
// client holds "series.value"; stores keep only the series and a one-way
// digest of the value. Providers persist tokens in PostgreSQL (expiry
// checked lazily on read), Redis (native TTL) or process memory.
package tokens

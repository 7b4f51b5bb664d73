// Package password holds the Hasher implementations identity providers verify
// against: Config (argon2id), Scrypt, and Multi, which picks one by the PHC
// identifier of the stored digest.
//
// Stored digests are untrusted input. Verify refuses any whose cost
// parameters are far above the configured ones.
package password

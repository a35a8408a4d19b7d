// Package secret hashes and verifies the control-surface shared secret.
//
// Hashes use Argon2id in the PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Hash strings come from configuration and are treated as untrusted during
// Verify: parameters far above the configured cost are refused.
package secret

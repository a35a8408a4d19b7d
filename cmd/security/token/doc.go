// Package token handles the plaintext shared secret that guards the HTTP
// control surface: extraction from requests, generation, and constant-time
// comparison through fixed-length digests.
package token

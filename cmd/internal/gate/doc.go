// Package gate is the moderation core: it decides what happens to a member,
// runs the key challenge, reacts to platform events and serves the admin
// operations used by chat commands and the HTTP API.
//
// All state lives in a Service value. Decide is pure and has no side effects;
// the Service applies its result through the Platform and Notifier ports.
package gate

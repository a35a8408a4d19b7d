// Package member is the persistent member store: one moderation record per
// platform identity, keyed by the platform-assigned id.
//
// All mutations go through Store, which serializes read-modify-write cycles
// per id and only returns once the backend has durably written the record.
// Backends are interchangeable (bbolt file, SQLite, PostgreSQL, memory) and
// only need to load, save and scan whole records.
//
// Records are never physically removed. Deleting or invalidating a member
// resets the record to a blank entry that still carries its id.
package member

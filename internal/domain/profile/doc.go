// Package profile creates, re-fingerprints and deletes browser profiles.
//
// Ids are the smallest free positive integer. User agents and MAC addresses
// are unique across profiles; supplied values are validated and checked,
// missing ones come from the fingerprint resolvers. Deletion cascades to the
// profile's directory, sessions, executions and workflow assignments.
package profile

// Package models defines the core domain models for Girandola.
//
// # Models
//
//   - Marker: an immutable geotagged record (a "girandola") dropped by a user
//   - User: a signed-in account, created on first Google sign-in
//   - Contributor: one row of the leaderboard
//   - Position: a single geolocation reading
//
// # Design Principles
//
// 1. **Immutability**: markers are created once and never updated or deleted
// 2. **Server-side ownership**: the owner of a marker comes from the session, never the payload
// 3. **Avoid circular references**: relationships use ID strings instead of pointers
// 4. **Absent is not zero**: optional readings are pointers so "unknown" stays distinguishable
package models

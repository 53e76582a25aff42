// Package ir provides the shared value types of the form engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the position model,
// answer payloads and error taxonomy in one foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - FormIndex is an immutable, comparable value usable as a map key
//   - Answer payloads are a closed set of Value implementations
//   - QuestionKind is a closed enum; every switch over it is exhaustive
//   - All JSON tags use snake_case
//   - Audit records carry logical clocks (seq) for ordering
package ir

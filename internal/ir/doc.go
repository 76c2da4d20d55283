// Package ir provides the intermediate representation shared by the query
// function compiler: function specs, declared types, result shapes,
// compiled queries, execution plans and diagnostics.
//
// ir imports only queryir (for the template token model and positions).
// Every other internal package imports ir, so ir stays the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - ResultShape is a sealed union; consumers switch over all six shapes
//   - Specs and plans are values built fresh per function, never shared
//   - All JSON tags use snake_case
//   - Fingerprints use canonical JSON (sorted keys, NFC strings) with
//     domain-separated SHA-256
package ir

// Package harness runs compile-and-execute scenarios against function specs.
//
// A scenario names spec files, optionally calls the compiled functions
// against a fresh in-memory SQLite database, and asserts on the plans, the
// diagnostics, the call trace and the final table contents.
//
// # Scenario Format
//
//	name: pets_crud
//	description: "Plans and runtime behaviour of the pets functions"
//	specs:
//	  - specs/pets.cue
//	setup:
//	  - call: create_table
//	flow:
//	  - call: add_pet
//	    args: { name: Rex, species: dog }
//	    expect: { rows_affected: 1 }
//	  - call: pet_by_name
//	    args: { name: Rex }
//	    expect:
//	      row: { species: dog }
//	assertions:
//	  - type: plan
//	    function: add_pet
//	    text: "INSERT INTO pets ( name , species ) VALUES ( $1 , $2 )"
//	    placeholders: [name, species]
//	  - type: diagnostics
//	    function: broken
//	    codes: [NotAnErrorUnion]
//	  - type: final_state
//	    table: pets
//	    where: { name: Rex }
//	    expect: { species: dog }
//
// # Assertion Types
//
//   - plan: compares the query text, placeholders, shape, call and returns
//     of a function's plan; only the fields given are checked
//   - diagnostics: compares the diagnostic codes of a function, in order
//   - trace_order: functions were called in the given order
//   - trace_count: a function was called exactly N times
//   - final_state: queries a table and checks one row's values
//
// # Golden Snapshots
//
// RunWithGolden renders every plan with ir.ExecutionPlan.Describe, every
// diagnostic, and the call trace as canonical JSON, and compares the text
// with testdata/golden/<scenario>.golden.
//
// Each scenario runs in its own in-memory database, so runs are isolated
// and reproducible.
package harness

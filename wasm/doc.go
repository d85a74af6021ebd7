// Package wasm decodes WebAssembly binary modules into a structured tree.
//
// ParseModule reads a complete module: the preamble, then every section in
// input order, including custom sections and function bodies down to
// individual instructions. Decoding is strict by default: over-long LEB128
// encodings, unknown opcodes, stray discriminant values and section size
// mismatches all fail with a sentinel error that wraps the byte offset of
// the fault. The Lenient option relaxes the encoding checks for inputs
// produced by sloppy tooling; truncated input always fails.
//
// The decoder does not validate the module: type checking, index bounds
// and link-time constraints are out of scope. What it guarantees is that a
// decoded Module is an exact structural reading of the bytes.
package wasm

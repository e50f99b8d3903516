// Package model defines the declarative data of interactive components: the
// component variants, the flows attached to them, the flow action variants,
// and the canonical state a component actor holds.
//
// Variants are sealed interfaces decoded from tagged JSON. Decoding reads the
// numeric "type" tag first and fails closed on any tag it does not know,
// before interpreting kind-specific fields.
//
// This package imports nothing internal.
package model

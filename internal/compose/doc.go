// Package compose holds the pure operations over the studio state model.
//
// Every function takes its inputs by value and returns fresh values. Slices,
// nested records, preview payloads and history details in a result never
// share storage with the arguments, so callers can keep earlier snapshots
// around without copying them first. Content entry data is copied at the
// top level, which is enough because every field value is a scalar. Values
// held in flow context maps are copied by reference and must be treated as
// immutable; the service only stores ids there.
package compose

// Package query evaluates structural predicates over nodes.
//
// A Query is a node type plus a conjunction of terms. Each term is one of
// the sealed Predicate types:
//   - Equals: attribute present and equal to a value
//   - InSet: attribute present and equal to one of several values
//   - Exists / NotExists: attribute present or absent
//
// Matching is exact and case-sensitive, with no coercion between value
// kinds. Queries scan every node, so filtered analytics over large
// histories belong in the secondary index instead.
//
// Selectors are the text form of a Query:
//
//	feature[status=in-progress][effort=3]:not([track])
//	*:is([priority=high],[priority=critical])
package query

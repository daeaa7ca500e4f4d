// Package model defines the workgraph data model: nodes with their
// properties, steps and typed edges, the closed set of per-type extensions,
// and the coded error taxonomy shared by every store and index.
//
// Everything is a Node. Features, bugs, sessions and tracks differ only in
// their Type discriminant and in the Extension they carry; there is no type
// hierarchy.
//
// Edges live on their source node. A blocks edge from A to B lets
// traversals infer a blocked_by edge from B to A without it being stored,
// and targets may name nodes that do not exist.
package model

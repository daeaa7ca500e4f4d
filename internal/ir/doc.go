// Package ir provides the constrained value types shared by every other
// workgraph package.
//
// This package imports nothing internal. It holds:
//   - Value: a sealed union of the scalar kinds a node property may carry
//     (String, Int, Bool). There is no float kind; numbers that need a
//     fractional part are stored as strings by the caller.
//   - Properties: an insertion-ordered string-keyed map of Values.
//   - MarshalCanonical and Digest: RFC 8785 style canonical JSON and
//     domain-separated SHA-256 digests, used wherever two encodings must be
//     byte-identical (index rebuild verification, event fingerprints).
package ir

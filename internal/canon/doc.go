// Package canon provides the canonical JSON form used for serialized query
// trees and for fingerprints derived from them.
//
// Canonical output has object keys ordered by UTF-16 code units, strings
// in NFC, no insignificant whitespace and no HTML escaping. Floats always
// carry a fraction or exponent ("2.0", never "2") so that Decode can tell
// them apart from integers and a float value survives a round trip with
// its Go type intact.
package canon

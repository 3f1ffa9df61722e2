// Package pattern defines the canonical learned-pattern record shared by the
// conversation buffer, the pattern store, and the transfer engine.
//
// A pattern is a reusable insight with a confidence score in [0.0, 1.0]
// reflecting how trustworthy it currently is. Records carry a namespace set
// identifying their logical owners; namespaces under different top-level
// prefixes (for example workspace.* vs core.*) are never mixed inside a
// single record.
package pattern

// Package validate checks inbound bot runner requests before any work is
// dispatched. Validation is fail-fast: the first violation is returned as an
// *Error carrying a stable code, the offending field, and where possible a
// hint and a well-formed example the caller can copy.
package validate

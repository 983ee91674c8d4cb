// Package registry provides the central glue between configuration and code.
//
// The Registry stores mappings between the action names used in configuration
// (e.g. "fpm_package") and the compiled Go functions that implement them, next
// to the parsed, format-agnostic definitions from the configuration itself.
//
// During application startup the registry is populated and then validated, so
// unknown references and cyclic builder requirements are rejected before any
// build work starts.
package registry

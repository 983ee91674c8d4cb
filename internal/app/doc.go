// Package app wires the application together: it loads the build environment
// and configuration, registers the built-in action modules, validates the
// registry, and dispatches the requested operation (build, deploy, or the
// cacheable-step modes used by CI).
package app

// Package config holds the format-agnostic model of everything the user
// declares: build steps, deployments, and builders. The model consists of
// immutable records produced once at startup by a Loader; all behavior lives
// elsewhere (step, builder, deployment), keyed by the names recorded here.
package config

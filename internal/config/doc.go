// Package config merges command-line, environment-variable, config-file,
// and processor-declared default values into resolved option values,
// namespaced per processor.
//
// Every registered processor contributes its declared options under a
// namespace; core options travel the same machinery under the reserved
// "core" namespace. Precedence per option, highest first: CLI flag,
// environment variable, config file, declared default. Coercion and
// validation failures fall back to the default with a warning; namespace
// collisions are a startup error.
package config

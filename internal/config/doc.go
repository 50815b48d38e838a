// Package config loads the tool-level configuration: the YAML file holding
// defaults like worker count, log settings, and the history database
// location. It is about how the tool behaves, not about what a pipeline
// contains; pipeline definitions live in the pipeline package.
//
// The file is looked up under the XDG config directory unless an explicit
// path is given, and a missing file at the default location simply yields
// the built-in defaults.
package config

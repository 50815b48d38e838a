// Package pipeline loads task pipelines from HCL files and builds them into
// executable task graphs. It is responsible for file parsing, merging blocks
// across files, evaluating locals, resolving declared dependencies by name,
// and binding each task block to the Go body implementing its kind.
package pipeline

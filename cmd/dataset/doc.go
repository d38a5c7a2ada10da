// Package dataset implements the export, import and inspect commands. Export
// and import run through a coordinator, so the configured worker mode decides
// whether the codec runs in goroutines, in child processes or inline.
package dataset

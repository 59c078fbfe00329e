// Package pipeline defines the ordered task model items move through.
//
// A Graph is the fixed task order for a configuration: rename, optionally
// derivatives, copy, then complete. Progress flags always form a prefix of
// that order, so the next eligible task is simply the first incomplete one.
package pipeline

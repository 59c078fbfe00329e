// Package preflight provides readiness checks for the directories and
// external tools scanpipe depends on.
//
// These checks run in two contexts:
//   - The CLI "run" and "advance" commands call RunAll before starting the
//     controller and warn about anything that is not ready.
//   - The CLI "status" command renders every Result alongside the database
//     and task health.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight

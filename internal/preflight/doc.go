// Package preflight provides readiness checks for the executables, directories
// and Plex database creditscan depends on.
//
// These checks run in two contexts:
//   - The daemon and the scan command call RunAll before doing any work and
//     refuse to start when a check fails.
//   - The CLI "creditscan status" command renders the individual results.
package preflight

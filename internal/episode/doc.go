// Package episode describes a single video file under a library root: its
// identifiers, on-disk and recorded file state, scan flags and the segments
// detected for it so far.
package episode

// Package segments models tagged time intervals within an episode and the
// coalescing and intersection rules used to combine fingerprint and silence
// matches into final intro/credits markers.
package segments

// Package scanner finds intro and credits segments across a season directory
// and commits them to the local store and the Plex library database.
//
// The pipeline per directory is: enumerate and validate episodes, classify
// which ones need (silence) detection, choose between a quick sample-based
// pass and a full fingerprint pass, detect segments per episode by querying
// the fingerprint engine with a search-window clip, and finally commit the
// accepted segments. Everything runs sequentially; the daemon serializes
// scanner entry points.
package scanner

// Package fingerprint indexes and matches search-window clips.
//
// Audio clips are hashed with chromaprint's fpcalc (-raw), video clips with a
// per-frame average hash. Hashes are persisted through an Index (the local
// store) keyed by episode, category and modality, so a season can be matched
// without re-hashing every clip. Query aligns a clip against every indexed
// track of the same directory by voting on hash offsets and reports the
// aligned runs as Entries.
package fingerprint

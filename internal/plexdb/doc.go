// Package plexdb talks to the Plex Media Server library database, the
// external metadata store creditscan anchors episodes to. It resolves a file
// path to its metadata item, reads reference intros Plex detected on its own,
// and replaces the intro/credits markers of an item with detected ones.
//
// Markers are rows in taggings joined to the marker tag (tag_type 12) with
// offsets in milliseconds. Rows written here carry "creditscan=1" in
// extra_data.
package plexdb

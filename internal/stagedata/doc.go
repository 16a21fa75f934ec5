// Package stagedata persists authored stage data and the resolution-miss
// journal in SQLite.
//
// Prop groups and transform units are authored with the show and imported
// from the scene manifest; the engine reads them at startup. The registry
// itself is never stored: it is rebuilt from the scene every run.
//
// The Journal is a stage.Observer that records misses on a background
// goroutine so the playback loop never waits on the database.
package stagedata

// Package app is the composition root of buddy.
//
// Run wires the pieces together in order:
//
//	config.Load()         Read ~/.config/buddy/config.toml
//	tea.LogToFile()       Route the standard logger away from the terminal
//	prefs.Load()          Theme and toast rows, defaults on any error
//	filmbuddy.NewClient() HTTP client carrying the session cookie
//	archive.Open()        Optional SQLite chat archive
//	engine.New().Start()  Unread and friend pollers
//	ui.Run()              Bubble Tea program (blocks)
//
// The engine reports changes through a one-slot channel. Sends never block,
// so pollers are never held up by a busy UI, and bursts of changes collapse
// into one redraw.
//
// Only configuration, logging, client and engine start-up failures are
// fatal. A missing archive is logged and the session runs without one; the
// service being unreachable only shows up as the offline banner.
package app

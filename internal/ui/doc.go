// Package ui is buddy's Bubble Tea terminal shell.
//
// The model never blocks on the network. It reads engine snapshots on every
// tick and whenever the engine signals a change, and runs user actions as
// commands whose results come back as messages. A chat is only redrawn when
// the engine reports a new conversation version.
package ui

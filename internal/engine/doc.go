// Package engine is the client-side synchronization engine.
//
// It polls three streams on independent schedules: unread messages (turned
// into toasts), the friend graph (friends plus incoming and outgoing
// requests) and the history of the chat that is currently open. Every poll is
// split into a fetch, which runs on the scheduler goroutine and may block on
// the network, and an apply, which takes the engine mutex so that applying a
// result is atomic with respect to user actions and other polls.
//
// User actions (friend requests, responses, deletion, sending messages) call
// the service first and only then update local state. Friend additions and
// removals, whether they come from polls or from local actions, are queued
// and handed out once through TakeEvents.
//
// Poll failures never stop polling; they are logged and recorded per stream,
// and a stream that failed twice in a row marks the engine offline.
package engine

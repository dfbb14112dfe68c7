// Package logtail reads the end of buddy's log file for the in-app log view.
//
// Read walks the file backwards in fixed-size blocks, so the cost depends on
// how many lines are requested rather than on the size of the log. Classify
// maps a line to a severity the UI uses for coloring.
package logtail

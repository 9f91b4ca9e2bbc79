// Package ui holds the terminal styles shared by command output.
//
// [Palette] wraps a handful of [lipgloss] styles; renderers in the formatter package take a
// palette so tests can pass one without colors.
package ui

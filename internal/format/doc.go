// Package format turns backend reply text into display HTML.
//
// It supports a fixed subset only: bold, italic, bullet lines, markdown links,
// bare links and e-mail addresses, and line breaks. Everything else is
// escaped and shown as typed.
package format

// Package gitrun runs external version-control commands and captures
// their output safely.
package gitrun

// Version is the gitrun release version.
const Version = "v0.3.0"

// Package buildinfo holds version metadata stamped at link time via
// -ldflags "-X .../buildinfo.Version=...".
package buildinfo

// Version is overwritten at build time; "dev" is the local-build default.
var Version = "dev"

// Commit is the VCS revision this binary was built from, if known.
var Commit = ""

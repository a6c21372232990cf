// Package version reports the build of the outbound binary. Version,
// GitCommit and BuildTime are stamped with -ldflags; anything left unset is
// filled from the VCS information the Go toolchain embeds.
package version

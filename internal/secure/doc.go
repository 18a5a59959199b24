// Package secure keeps resolved secret values out of reach between
// fetching them and handing them to a child process, and writes
// credential-bearing files without ever exposing them to other users.
//
// Values are held in memguard enclaves: encrypted in memory, excluded
// from swap where mlock is available, and wiped when the holder is
// destroyed. Call memguard.Purge from main before exiting.
//
// Files are replaced atomically from a temporary file created with mode
// 0600. An existing destination that is readable by group or others is
// refused rather than overwritten.
package secure

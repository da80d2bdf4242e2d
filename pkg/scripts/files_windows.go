//go:build windows

package scripts

import "io/fs"

// Windows has no uid/gid stat fields. Ownership checks compare against
// empty strings, which callers treat as unavailable.
func fileOwnership(info fs.FileInfo) (owner, group string, err error) {
	return "", "", nil
}

//go:build !windows

package scripts

import (
	"fmt"
	"io/fs"
	"os/user"
	"syscall"
)

func fileOwnership(info fs.FileInfo) (owner, group string, err error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", nil
	}
	u, err := user.LookupId(fmt.Sprint(st.Uid))
	if err != nil {
		owner = fmt.Sprint(st.Uid)
	} else {
		owner = u.Username
	}
	g, err := user.LookupGroupId(fmt.Sprint(st.Gid))
	if err != nil {
		group = fmt.Sprint(st.Gid)
	} else {
		group = g.Name
	}
	return owner, group, nil
}

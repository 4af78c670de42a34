// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/sysinit-go/daemonkit"
)

// RevokePrivileges drops any elevated effective uid/gid back to the
// process's real uid/gid — the common case of a daemon started setuid
// root that only needed root privilege for its initial bind/chroot and
// wants to run unprivileged from then on — and verifies the drop
// actually took, since silently continuing to run privileged on a
// failed setuid/setgid is exactly the kind of bug this exists to catch.
func RevokePrivileges() error {
	const op = "daemon.RevokePrivileges"

	rgid := unix.Getgid()
	if unix.Getegid() != rgid {
		if err := unix.Setgid(rgid); err != nil {
			return daemonkit.New(op, daemonkit.PermissionDenied, err)
		}
		if unix.Getegid() != rgid || unix.Getgid() != rgid {
			return daemonkit.New(op, daemonkit.PermissionDenied, nil)
		}
	}

	ruid := unix.Getuid()
	if unix.Geteuid() != ruid {
		if err := unix.Setuid(ruid); err != nil {
			return daemonkit.New(op, daemonkit.PermissionDenied, err)
		}
		if unix.Geteuid() != ruid || unix.Getuid() != ruid {
			return daemonkit.New(op, daemonkit.PermissionDenied, nil)
		}
	}

	return nil
}

// BecomeUser permanently switches the calling process to uid/gid,
// clearing supplementary groups first and, if userName is non-empty,
// replacing them with userName's own group list via initgroups before
// dropping the primary gid and uid. Both gid and uid are verified in
// both their real and effective forms after the switch, the same
// belt-and-suspenders check RevokePrivileges makes.
//
// Order matters and must not change: groups and gid must be set while
// still privileged enough to do so, which means strictly before the
// uid switch away from root.
func BecomeUser(uid, gid int, userName string) error {
	const op = "daemon.BecomeUser"

	if err := unix.Setgroups(nil); err != nil {
		// Some BSD kernels always retain one supplementary group no
		// matter what; tolerate that quirk rather than failing a switch
		// that otherwise fully succeeds.
		if err != unix.EINVAL && err != unix.EPERM {
			return daemonkit.New(op, daemonkit.PermissionDenied, err)
		}
	}

	if userName != "" {
		if err := initGroups(userName, gid); err != nil {
			return daemonkit.New(op, daemonkit.PermissionDenied, err)
		}
	}

	if err := unix.Setgid(gid); err != nil {
		return daemonkit.New(op, daemonkit.PermissionDenied, err)
	}
	if unix.Getegid() != gid || unix.Getgid() != gid {
		return daemonkit.New(op, daemonkit.PermissionDenied, nil)
	}

	if err := unix.Setuid(uid); err != nil {
		return daemonkit.New(op, daemonkit.PermissionDenied, err)
	}
	if unix.Geteuid() != uid || unix.Getuid() != uid {
		return daemonkit.New(op, daemonkit.PermissionDenied, nil)
	}

	return nil
}

// initGroups populates the calling process's supplementary group list
// with every group userName belongs to, the Go translation of
// initgroups(3) (which x/sys/unix doesn't wrap directly: it's a libc
// convenience built on getgrouplist(3), which has no raw syscall of its
// own, plus setgroups(2)). The group list comes from os/user and is set
// with unix.Setgroups.
func initGroups(userName string, gid int) error {
	u, err := user.Lookup(userName)
	if err != nil {
		return err
	}

	groupIDs, err := u.GroupIds()
	if err != nil {
		return err
	}

	gids := make([]int, 0, len(groupIDs)+1)
	seen := map[int]bool{gid: true}
	gids = append(gids, gid)

	for _, raw := range groupIDs {
		g, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if !seen[g] {
			seen[g] = true
			gids = append(gids, g)
		}
	}

	return unix.Setgroups(gids)
}

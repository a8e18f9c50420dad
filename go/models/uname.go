package models

import "strings"

type Uname struct {
	Sysname    string
	Nodename   string
	Release    string
	Version    string
	Machine    string
	Domainname string
}

// LinuxUname is what the emulated kernel reports about itself.
func LinuxUname(machine string) *Uname {
	return &Uname{
		Sysname:  "Linux",
		Nodename: "transcorn",
		Release:  "5.15.0-transcorn",
		Version:  "#1 SMP emulated",
		Machine:  machine,
	}
}

func pad(s string, length int) string {
	if len(s)+1 > length {
		s = s[:length-1]
	}
	return s + strings.Repeat("\x00", length-len(s))
}

// Pad sizes each field to length bytes (including the NUL), so the struct
// packs as a fixed utsname.
func (u *Uname) Pad(length int) {
	u.Sysname = pad(u.Sysname, length)
	u.Nodename = pad(u.Nodename, length)
	u.Release = pad(u.Release, length)
	u.Version = pad(u.Version, length)
	u.Machine = pad(u.Machine, length)
	u.Domainname = pad(u.Domainname, length)
}

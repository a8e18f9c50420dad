package models

// SysCb observes one system call. Before hooks see ret as 0 and an empty
// desc; after hooks see the value returned to the guest and, when strace
// formatting is on, the rendered call.
type SysCb func(num int, name string, args []uint64, ret uint64, desc string)

type SysHook struct {
	Before, After SysCb
}

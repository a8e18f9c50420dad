package x86_64

var linuxSyscalls = map[int]string{
	0:   "read",
	1:   "write",
	2:   "open",
	3:   "close",
	4:   "stat",
	5:   "fstat",
	6:   "lstat",
	7:   "poll",
	8:   "lseek",
	9:   "mmap",
	10:  "mprotect",
	11:  "munmap",
	12:  "brk",
	13:  "rt_sigaction",
	14:  "rt_sigprocmask",
	15:  "rt_sigreturn",
	16:  "ioctl",
	17:  "pread64",
	18:  "pwrite64",
	19:  "readv",
	20:  "writev",
	21:  "access",
	22:  "pipe",
	23:  "select",
	24:  "sched_yield",
	25:  "mremap",
	26:  "msync",
	27:  "mincore",
	28:  "madvise",
	32:  "dup",
	33:  "dup2",
	34:  "pause",
	35:  "nanosleep",
	37:  "alarm",
	39:  "getpid",
	41:  "socket",
	42:  "connect",
	56:  "clone",
	57:  "fork",
	58:  "vfork",
	59:  "execve",
	60:  "exit",
	61:  "wait4",
	62:  "kill",
	63:  "uname",
	72:  "fcntl",
	74:  "fsync",
	77:  "ftruncate",
	78:  "getdents",
	79:  "getcwd",
	80:  "chdir",
	82:  "rename",
	83:  "mkdir",
	84:  "rmdir",
	87:  "unlink",
	89:  "readlink",
	90:  "chmod",
	95:  "umask",
	96:  "gettimeofday",
	97:  "getrlimit",
	98:  "getrusage",
	99:  "sysinfo",
	102: "getuid",
	104: "getgid",
	107: "geteuid",
	108: "getegid",
	110: "getppid",
	131: "sigaltstack",
	137: "statfs",
	149: "mlock",
	150: "munlock",
	157: "prctl",
	158: "arch_prctl",
	186: "gettid",
	201: "time",
	202: "futex",
	217: "getdents64",
	218: "set_tid_address",
	228: "clock_gettime",
	229: "clock_getres",
	230: "clock_nanosleep",
	231: "exit_group",
	257: "openat",
	262: "newfstatat",
	270: "pselect6",
	273: "set_robust_list",
	302: "prlimit64",
	318: "getrandom",
	334: "rseq",
}

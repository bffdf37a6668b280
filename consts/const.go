package consts

// run path arity: rootdir uid gid binary
const (
	MIN_ARGS = 4
)

const (
	// tmpfs mounts stay writable inside the sandbox as scratch space.
	FSTYPE_TMPFS = "tmpfs"
)

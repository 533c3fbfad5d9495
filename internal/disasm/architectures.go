package disasm

// StandardArchitectures is the fixed set of architecture tags the service
// always reports from the architectures RPC, independent of what has
// actually been seen in storage. It mirrors the original FIRST server's
// FIRSTDB.standards constant.
var StandardArchitectures = []string{
	"intel16", "intel32", "intel64", "arm32", "arm64", "mips", "ppc", "sparc", "sysz",
}

//go:build unix

package cmd

import (
	"os"
	"syscall"
)

// foregroundSignals приходят, когда задача терминала возвращается на передний план
var foregroundSignals = []os.Signal{syscall.SIGCONT}

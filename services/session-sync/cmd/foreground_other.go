//go:build !unix

package cmd

import "os"

var foregroundSignals []os.Signal

//go:build windows

package infrastructure

import "os"

func interruptSignal() os.Signal { return os.Kill }

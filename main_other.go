//go:build !linux

package main

import (
	"os"
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// hotkey registration needs the main thread on macOS and Windows
	code := 0
	mainthread.Init(func() { code = run() })
	os.Exit(code)
}

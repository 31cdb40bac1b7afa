//go:build windows

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

const utf8CodePage = 65001

func init() {
	// Assistant replies are UTF-8; the legacy console code page garbles them
	if err := windows.SetConsoleOutputCP(utf8CodePage); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not switch console to UTF-8: %v\n", err)
	}
}

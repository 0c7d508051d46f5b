// Command livebid はLAN向けのライブオークションサーバー。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/livebid/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "livebid: %v\n", err)
		os.Exit(1)
	}
}

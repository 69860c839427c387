// Command ytconv inspects and converts videos from the terminal.
package main

import "github.com/emanuelef/yt-convert-go/internal/cli"

func main() {
	cli.Execute()
}

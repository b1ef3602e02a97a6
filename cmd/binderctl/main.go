// binderctl is the control CLI for binderd. It talks to the daemon over its
// Unix socket.
package main

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	Execute()
}

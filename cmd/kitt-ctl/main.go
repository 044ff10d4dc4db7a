package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	cli "github.com/spf13/pflag"

	"kitt/internal/config"
	"kitt/internal/ipc"
)

const usage = `usage: kitt-ctl [--socket path] <command>

commands:
  trigger          start a turn, same as saying the wake phrase
  wake on|off      enable or disable the wake phrase
  status           print the turn state
  ask <file>       run a turn on a recorded audio file
`

func main() {
	socket := cli.StringP("socket", "s", config.Default().Socket, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 5*time.Second, "Reply timeout")
	cli.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{Cmd: args[0]}
	if len(args) > 1 {
		msg.Arg = args[1]
	}
	if msg.Cmd == ipc.CmdAsk && msg.Arg != "" {
		if abs, err := filepath.Abs(msg.Arg); err == nil {
			msg.Arg = abs
		}
	}

	r, err := ipc.SendCommand(*socket, msg, *timeout)
	if err != nil {
		fmt.Println("kitt-daemon not running:", err)
		os.Exit(1)
	}

	fmt.Printf("state: %s  wake: %v", r.State, r.Wake)
	if r.Message != "" {
		fmt.Printf("  (%s)", r.Message)
	}
	fmt.Println()
	if !r.OK {
		os.Exit(1)
	}
}

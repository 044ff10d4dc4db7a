package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const (
	CmdTrigger = "trigger"
	CmdWake    = "wake"
	CmdStatus  = "status"
	CmdAsk     = "ask"
)

// ControlMessage is one request from kitt-ctl. Arg carries "on"/"off"
// for wake and a file path for ask.
type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	State   string `json:"state,omitempty"`
	Wake    bool   `json:"wake"`
}

type Handler func(ctx context.Context, msg ControlMessage) Reply

// Serve accepts control connections on the unix socket at path until ctx
// is done. Each connection carries one request and one reply.
func Serve(ctx context.Context, path string, handler Handler) error {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info("Control socket listening", "path", path)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("Control accept failed", "err", err)
			continue
		}
		go handleConn(ctx, conn, handler)
	}
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}
	log.Debug("Control message", "cmd", msg.Cmd, "arg", msg.Arg)

	if err := json.NewEncoder(conn).Encode(handler(ctx, msg)); err != nil {
		log.Warn("Control reply failed", "err", err)
	}
}

func SendCommand(path string, msg ControlMessage, timeout time.Duration) (Reply, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}
	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var r Reply
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return Reply{}, fmt.Errorf("reply: %w", err)
	}
	return r, nil
}

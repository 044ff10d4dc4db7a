package main

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitt/internal/ipc"
	"kitt/internal/turn"
	"kitt/internal/wake"
)

func newControlTarget() (*turn.Controller, *wake.Monitor) {
	ctl := turn.NewController(turn.Deps{}, turn.Settings{})
	mon := wake.NewMonitor(nil, regexp.MustCompile("(?i)hey kitt"), func() {}, time.Second)
	return ctl, mon
}

func TestControlWakeUndelivered(t *testing.T) {
	ctl, mon := newControlTarget()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := control(ctx, ctl, mon, ipc.ControlMessage{Cmd: ipc.CmdWake, Arg: "on"})

	assert.False(t, r.OK)
	assert.Equal(t, "busy", r.Message)
}

func TestControlWakeDelivered(t *testing.T) {
	ctl, mon := newControlTarget()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctl.Run(ctx)

	r := control(ctx, ctl, mon, ipc.ControlMessage{Cmd: ipc.CmdWake, Arg: "off"})
	require.True(t, r.OK)
	assert.False(t, r.Wake)
	assert.False(t, ctl.WakeArmed())

	r = control(ctx, ctl, mon, ipc.ControlMessage{Cmd: ipc.CmdWake, Arg: "sideways"})
	assert.False(t, r.OK)
}

package turn

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kitt/internal/audio"
	"kitt/internal/config"
	"kitt/internal/gateway"
	"kitt/internal/nlu"
	"kitt/internal/playback"
)

type Recorder interface {
	RecordUtterance(ctx context.Context, opt audio.Options) (audio.Utterance, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, u audio.Utterance) (string, error)
}

type Chatter interface {
	Ask(ctx context.Context, text string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (playback.Clip, error)
}

type Directions interface {
	Steps(ctx context.Context, origin, destination string) ([]gateway.Step, error)
}

type Player interface {
	Play(ctx context.Context, clips ...playback.Clip)
}

type WakeMonitor interface {
	Enable(ctx context.Context)
	Disable()
}

// Deps are the collaborators a turn talks to. Monitor may be nil.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Chat        Chatter
	Synthesizer Synthesizer
	Directions  Directions
	Player      Player
	Monitor     WakeMonitor
}

type Settings struct {
	Record   audio.Options
	Phrases  config.Phrases
	Timeout  time.Duration // per remote call
	MaxSteps int
	Chime    playback.Clip // empty Data means no chime
}

type Option func(*Controller)

// WithStateHook is called from the controller loop on every transition.
func WithStateHook(f func(s State, turnID string)) Option {
	return func(c *Controller) { c.onState = f }
}

func WithTranscript(t *Transcript) Option {
	return func(c *Controller) { c.transcript = t }
}

// WithWakeArmed sets whether the wake monitor starts enabled.
func WithWakeArmed(on bool) Option {
	return func(c *Controller) { c.armed = on }
}

type event struct {
	kind   eventKind
	id     string
	state  State
	utt    *audio.Utterance
	on     bool
	result chan bool
}

type eventKind int

const (
	evWake eventKind = iota
	evState
	evDone
	evArm
)

// Controller runs one turn at a time: wake, record, transcribe, route,
// speak, idle. The loop in Run owns the state; the turn itself runs on
// its own goroutine and reports progress back as events.
type Controller struct {
	deps       Deps
	set        Settings
	transcript *Transcript
	onState    func(State, string)

	events chan event
	wakes  chan struct{}

	mu    sync.Mutex
	state State
	turn  string
	armed bool
}

func NewController(deps Deps, set Settings, opts ...Option) *Controller {
	c := &Controller{
		deps:   deps,
		set:    set,
		events: make(chan event),
		wakes:  make(chan struct{}, 1),
		armed:  true,
	}
	for _, o := range opts {
		o(c)
	}
	if c.transcript == nil {
		c.transcript = NewTranscript(10, nil)
	}
	if c.set.MaxSteps <= 0 {
		c.set.MaxSteps = 3
	}
	return c
}

func (c *Controller) Transcript() *Transcript { return c.transcript }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WakeArmed reports whether the wake monitor is re-enabled between turns.
func (c *Controller) WakeArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Notify is the wake monitor callback. It never blocks; a wake that
// arrives while another is still pending is dropped.
func (c *Controller) Notify() {
	select {
	case c.wakes <- struct{}{}:
	default:
	}
}

// Trigger starts a turn from the manual control and reports whether it
// was accepted. It is refused while a turn is in flight.
func (c *Controller) Trigger(ctx context.Context) bool {
	return c.request(ctx, event{kind: evWake})
}

// Ask starts a turn with a pre-recorded utterance in place of the
// microphone.
func (c *Controller) Ask(ctx context.Context, u audio.Utterance) bool {
	return c.request(ctx, event{kind: evWake, utt: &u})
}

// SetWake turns the wake monitor on or off. While off, only manual
// triggers start turns.
func (c *Controller) SetWake(ctx context.Context, on bool) bool {
	return c.request(ctx, event{kind: evArm, on: on})
}

func (c *Controller) request(ctx context.Context, ev event) bool {
	ev.result = make(chan bool, 1)
	select {
	case c.events <- ev:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-ev.result:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) post(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// Run is the controller loop. It returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.transcript.Add("KITT: " + c.set.Phrases.Online)
	c.arm(ctx)
	defer c.disarm()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wakes:
			c.begin(ctx, nil)
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evWake:
		ev.result <- c.begin(ctx, ev.utt)
	case evState:
		c.mu.Lock()
		current := c.turn == ev.id
		c.mu.Unlock()
		if current {
			c.transition(ev.state, ev.id)
		}
	case evDone:
		c.transition(Idle, "")
		c.arm(ctx)
	case evArm:
		c.mu.Lock()
		c.armed = ev.on
		idle := c.state == Idle
		c.mu.Unlock()
		ev.result <- true
		switch {
		case !idle:
		case ev.on:
			c.arm(ctx)
		default:
			c.disarm()
		}
	}
}

// begin is the single re-entrancy guard: only an idle controller starts
// a turn.
func (c *Controller) begin(ctx context.Context, utt *audio.Utterance) bool {
	if c.State() != Idle {
		log.Debug("Wake ignored, turn in flight", "state", c.State())
		return false
	}

	id := uuid.NewString()
	c.transition(Listening, id)
	c.disarm()

	go func() {
		c.runTurn(ctx, id, utt)
		c.post(ctx, event{kind: evDone, id: id})
	}()
	return true
}

func (c *Controller) transition(s State, id string) {
	c.mu.Lock()
	c.state, c.turn = s, id
	c.mu.Unlock()

	log.Debug("Turn state", "state", s, "turn", id)
	if c.onState != nil {
		c.onState(s, id)
	}
}

func (c *Controller) arm(ctx context.Context) {
	if c.deps.Monitor == nil || !c.WakeArmed() {
		return
	}
	c.deps.Monitor.Enable(ctx)
}

func (c *Controller) disarm() {
	if c.deps.Monitor != nil {
		c.deps.Monitor.Disable()
	}
}

// turnRun carries one turn's identity through its steps.
type turnRun struct {
	*Controller
	id  string
	log *log.Logger
}

func (c *Controller) runTurn(ctx context.Context, id string, utt *audio.Utterance) {
	t := &turnRun{Controller: c, id: id, log: log.With("turn", id)}
	t.log.Info("Turn started")

	if err := t.listen(ctx, utt); err != nil {
		t.log.Error("Turn failed", "err", err)
		t.enter(ctx, Speaking)
		t.say(ctx, t.set.Phrases.Failure)
	}

	t.log.Info("Turn finished")
}

func (t *turnRun) enter(ctx context.Context, s State) {
	t.post(ctx, event{kind: evState, id: t.id, state: s})
}

func (t *turnRun) listen(ctx context.Context, utt *audio.Utterance) error {
	t.transcript.Add("KITT: " + t.set.Phrases.Listening)
	if len(t.set.Chime.Data) > 0 {
		t.deps.Player.Play(ctx, t.set.Chime)
	}

	var u audio.Utterance
	if utt != nil {
		u = *utt
	} else {
		var err error
		u, err = t.deps.Recorder.RecordUtterance(ctx, t.set.Record)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		t.log.Info("Recorded", "duration", u.Duration, "reason", u.Reason, "bytes", len(u.Data))
	}

	t.enter(ctx, Transcribing)

	rctx, cancel := t.remote(ctx)
	text, err := t.deps.Transcriber.Transcribe(rctx, u)
	cancel()
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	text = strings.TrimSpace(text)
	t.transcript.Add("You: " + text)
	if text == "" {
		t.log.Info("Empty transcript")
		t.enter(ctx, Speaking)
		t.say(ctx, t.set.Phrases.DidNotCatch)
		return nil
	}

	t.enter(ctx, Routing)

	if req, ok := nlu.ParseDirections(text); ok {
		t.log.Info("Directions requested", "origin", req.Origin, "destination", req.Destination)
		t.enter(ctx, Speaking)
		return t.directions(ctx, req)
	}

	return t.chat(ctx, text)
}

func (t *turnRun) chat(ctx context.Context, text string) error {
	rctx, cancel := t.remote(ctx)
	reply, err := t.deps.Chat.Ask(rctx, nlu.Speechy(text))
	cancel()
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	t.enter(ctx, Speaking)
	t.say(ctx, reply)
	return nil
}

func (t *turnRun) directions(ctx context.Context, req nlu.NavigationRequest) error {
	p := t.set.Phrases
	t.say(ctx, fmt.Sprintf(p.PlotCourse, req.Origin, req.Destination))

	rctx, cancel := t.remote(ctx)
	steps, err := t.deps.Directions.Steps(rctx, req.Origin, req.Destination)
	cancel()
	if err != nil {
		return fmt.Errorf("directions: %w", err)
	}

	if len(steps) == 0 {
		t.say(ctx, p.NoDirections)
		return nil
	}

	lines := []string{p.RouteFound}
	for _, s := range steps[:min(len(steps), t.set.MaxSteps)] {
		lines = append(lines, fmt.Sprintf(p.Step, s.Instruction, s.Distance))
	}
	lines = append(lines, p.ContinuePrompt)

	t.say(ctx, lines...)
	return nil
}

// say logs and synthesizes each line, then plays them as separate clips
// in order. A line that cannot be synthesized is still shown but skipped
// in playback.
func (t *turnRun) say(ctx context.Context, lines ...string) {
	clips := make([]playback.Clip, 0, len(lines))
	for _, line := range lines {
		t.transcript.Add("KITT: " + line)

		rctx, cancel := t.remote(ctx)
		clip, err := t.deps.Synthesizer.Synthesize(rctx, line)
		cancel()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				t.log.Warn("Speech synthesis failed", "text", line, "err", err)
			}
			continue
		}
		clips = append(clips, clip)
	}

	t.deps.Player.Play(ctx, clips...)
}

func (t *turnRun) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.set.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.set.Timeout)
}

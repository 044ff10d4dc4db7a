package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Ducker fades other applications' sink inputs down while KITT speaks
// and back up afterwards. Streams whose application.name is listed in
// self are left alone.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	self     []string
	factor   float64
	fade     time.Duration
	original map[int]int

	pactl func(ctx context.Context, args ...string) ([]byte, error)
}

func NewDucker(self []string, factor float64, fade time.Duration) *Ducker {
	return &Ducker{
		self:     append([]string(nil), self...),
		factor:   math.Max(0, math.Min(factor, 1)),
		fade:     fade,
		original: make(map[int]int),
		pactl: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "pactl", args...).Output()
		},
	}
}

// Duck is a no-op when already ducked.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)

	var targets []fadeTarget
	for _, in := range inputs {
		if d.isSelf(in) {
			continue
		}
		d.original[in.ID] = in.Volume
		targets = append(targets, fadeTarget{
			id:   in.ID,
			from: in.Volume,
			to:   int(math.Round(float64(in.Volume) * d.factor)),
		})
	}

	if err := d.fadeTo(ctx, targets); err != nil {
		return err
	}

	d.active = true
	return nil
}

// Restore fades ducked streams back to their original volume. Streams
// that appeared after Duck are ignored.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var targets []fadeTarget
	for _, in := range inputs {
		orig, ok := d.original[in.ID]
		if !ok || d.isSelf(in) {
			continue
		}
		targets = append(targets, fadeTarget{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.fadeTo(ctx, targets); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.self {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = max(0, min(percent, 150))
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	if err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// fadeTo steps every target linearly over d.fade in 10ms steps.
func (d *Ducker) fadeTo(ctx context.Context, targets []fadeTarget) error {
	if len(targets) == 0 {
		return nil
	}

	steps := int(d.fade / (10 * time.Millisecond))
	if steps < 1 {
		for _, t := range targets {
			if err := d.setVolume(ctx, t.id, t.to); err != nil {
				return err
			}
		}
		return nil
	}
	stepDuration := d.fade / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := float64(t.from) + float64(t.to-t.from)*frac
			if err := d.setVolume(ctx, t.id, int(math.Round(v))); err != nil {
				return err
			}
		}

		if i < steps {
			time.Sleep(stepDuration)
		}
	}

	return nil
}

func parseSinkInputs(text string) []sinkInput {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						in.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && in.AppName == "" {
				if i := strings.Index(line, `"`); i >= 0 {
					rest := line[i+1:]
					if j := strings.Index(rest, `"`); j >= 0 {
						in.AppName = rest[:j]
					}
				}
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}

	return res
}

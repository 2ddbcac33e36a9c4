package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/and161185/gymflow/internal/navigation"
	"golang.org/x/sync/errgroup"
)

// controller is what the watch prompt drives; *engine.Engine implements it.
type controller interface {
	CurrentScreen() navigation.Screen
	Navigate(screen navigation.Screen, aux *navigation.Aux) navigation.State
	Back() navigation.State
	Selections() navigation.Aux
	Refresh(ctx context.Context) error
	ShowPasswordSetupOverlay() bool
	CompletePasswordSetup(ctx context.Context, password string) error
	SkipPasswordSetup(ctx context.Context) error
}

// syncWriter serializes writes from the transition callback and the prompt.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

const watchHelp = `commands:
  screen                     show the current screen and selections
  goto <screen> [key=value]  navigate; keys: workout, program, category, duration
  back                       previous screen
  refresh                    re-check the profile (stays put on failure)
  set-password <password>    finish password setup
  skip-password              skip password setup for this session
  logout
  quit
`

// watch runs the engine, prints every transition and executes prompt commands until ctx is done,
// input ends or the user quits.
func watch(ctx context.Context, d *deps, in io.Reader, out io.Writer) error {
	w := &syncWriter{w: out}
	eng := d.engine(navigation.ScrollResetterFunc(func() {}))
	unsub := eng.Subscribe(func(st navigation.State) {
		fmt.Fprintf(w, "-> %s\n", st.Screen)
	})
	defer unsub()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error {
		watchOverlay(gctx, eng, w, 250*time.Millisecond)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return prompt(gctx, eng, d.provider.SignOut, lines(gctx, in), w)
	})
	return g.Wait()
}

// lines feeds input lines to a channel that is closed at EOF or once ctx is done.
func lines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// watchOverlay reports password-setup overlay changes.
func watchOverlay(ctx context.Context, c controller, out io.Writer, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	shown := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if active := c.ShowPasswordSetupOverlay(); active != shown {
				shown = active
				if active {
					fmt.Fprintln(out, "password setup required (set-password <pw> | skip-password)")
				} else {
					fmt.Fprintln(out, "password setup closed")
				}
			}
		}
	}
}

var errQuit = errors.New("quit")

func prompt(ctx context.Context, c controller, signOut func(context.Context) error, in <-chan string, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-in:
			if !ok {
				return nil
			}
			err := execLine(ctx, c, signOut, line, out)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// execLine runs one prompt command.
func execLine(ctx context.Context, c controller, signOut func(context.Context) error, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "help":
		fmt.Fprint(out, watchHelp)
	case "quit", "exit":
		return errQuit
	case "screen":
		fmt.Fprintf(out, "%s%s\n", c.CurrentScreen(), formatAux(c.Selections()))
		if c.ShowPasswordSetupOverlay() {
			fmt.Fprintln(out, "password setup required")
		}
	case "goto":
		if len(fields) < 2 {
			return errors.New("usage: goto <screen> [key=value]")
		}
		screen := navigation.Screen(fields[1])
		if !screen.Valid() {
			return fmt.Errorf("unknown screen %q", fields[1])
		}
		aux, err := parseAux(fields[2:])
		if err != nil {
			return err
		}
		c.Navigate(screen, aux)
	case "back":
		c.Back()
	case "refresh":
		return c.Refresh(ctx)
	case "set-password":
		if len(fields) != 2 {
			return errors.New("usage: set-password <password>")
		}
		return c.CompletePasswordSetup(ctx, fields[1])
	case "skip-password":
		return c.SkipPasswordSetup(ctx)
	case "logout":
		return signOut(ctx)
	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return nil
}

// parseAux reads key=value selections for goto.
func parseAux(kvs []string) (*navigation.Aux, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	var aux navigation.Aux
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			return nil, fmt.Errorf("bad selection %q, want key=value", kv)
		}
		switch k {
		case "workout":
			aux.WorkoutID = &v
		case "program":
			aux.ProgramID = &v
		case "category":
			id, name, _ := strings.Cut(v, ":")
			if name == "" {
				name = id
			}
			aux.Category = &navigation.Category{ID: id, Name: name}
		case "duration":
			dur, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("duration: %w", err)
			}
			aux.LastWorkoutDuration = &dur
		default:
			return nil, fmt.Errorf("unknown selection %q", k)
		}
	}
	return &aux, nil
}

func formatAux(a navigation.Aux) string {
	var parts []string
	if a.WorkoutID != nil {
		parts = append(parts, "workout="+*a.WorkoutID)
	}
	if a.ProgramID != nil {
		parts = append(parts, "program="+*a.ProgramID)
	}
	if a.Category != nil {
		parts = append(parts, "category="+a.Category.ID+":"+a.Category.Name)
	}
	if a.LastWorkoutDuration != nil {
		parts = append(parts, "duration="+a.LastWorkoutDuration.String())
	}
	if len(parts) == 0 {
		return ""
	}
	return " [" + strings.Join(parts, " ") + "]"
}

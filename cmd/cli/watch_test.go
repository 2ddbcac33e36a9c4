package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and161185/gymflow/internal/navigation"
)

type fakeController struct {
	mu       sync.Mutex
	screen   navigation.Screen
	aux      navigation.Aux
	overlay  bool
	calls    []string
	refreshE error
}

var _ controller = (*fakeController)(nil)

func (f *fakeController) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeController) CurrentScreen() navigation.Screen { return f.screen }

func (f *fakeController) Navigate(s navigation.Screen, aux *navigation.Aux) navigation.State {
	f.record("goto " + string(s))
	f.screen = s
	if aux != nil {
		f.aux = *aux
	}
	return navigation.State{Screen: s}
}

func (f *fakeController) Back() navigation.State {
	f.record("back")
	return navigation.State{}
}

func (f *fakeController) Selections() navigation.Aux { return f.aux }

func (f *fakeController) Refresh(context.Context) error {
	f.record("refresh")
	return f.refreshE
}

func (f *fakeController) ShowPasswordSetupOverlay() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlay
}

func (f *fakeController) setOverlay(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay = v
}

func (f *fakeController) CompletePasswordSetup(_ context.Context, pw string) error {
	f.record("set-password " + pw)
	return nil
}

func (f *fakeController) SkipPasswordSetup(context.Context) error {
	f.record("skip")
	return nil
}

func Test_execLine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := &fakeController{screen: navigation.Dashboard}
	var out bytes.Buffer
	signedOut := false
	signOut := func(context.Context) error { signedOut = true; return nil }

	for _, line := range []string{
		"",
		"goto workout_detail workout=w1",
		"back",
		"refresh",
		"set-password long-enough",
		"skip-password",
		"logout",
	} {
		if err := execLine(ctx, c, signOut, line, &out); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	want := "goto workout_detail,back,refresh,set-password long-enough,skip"
	if got := strings.Join(c.calls, ","); got != want {
		t.Fatalf("calls=%q, want %q", got, want)
	}
	if !signedOut {
		t.Fatalf("logout must sign out")
	}

	out.Reset()
	if err := execLine(ctx, c, signOut, "screen", &out); err != nil {
		t.Fatalf("screen: %v", err)
	}
	if out.String() != "workout_detail [workout=w1]\n" {
		t.Fatalf("screen output %q", out.String())
	}

	for _, bad := range []string{"goto", "goto nowhere", "goto dashboard color=red", "set-password", "dance"} {
		if err := execLine(ctx, c, signOut, bad, &out); err == nil {
			t.Fatalf("%q: want error", bad)
		}
	}
	if err := execLine(ctx, c, signOut, "quit", &out); !errors.Is(err, errQuit) {
		t.Fatalf("quit: %v", err)
	}

	c.refreshE = errors.New("offline")
	if err := execLine(ctx, c, signOut, "refresh", &out); err == nil {
		t.Fatalf("refresh error must surface")
	}
}

func Test_parseAux(t *testing.T) {
	t.Parallel()

	aux, err := parseAux(nil)
	if err != nil || aux != nil {
		t.Fatalf("empty: %v %v", aux, err)
	}
	aux, err = parseAux([]string{"program=p1", "category=c1:Yoga", "duration=45m"})
	if err != nil {
		t.Fatalf("parseAux: %v", err)
	}
	if *aux.ProgramID != "p1" || aux.Category.Name != "Yoga" || *aux.LastWorkoutDuration != 45*time.Minute {
		t.Fatalf("parsed %+v", aux)
	}
	if got := formatAux(*aux); got != " [program=p1 category=c1:Yoga duration=45m0s]" {
		t.Fatalf("formatAux=%q", got)
	}

	aux, err = parseAux([]string{"category=core"})
	if err != nil || aux.Category.Name != "core" {
		t.Fatalf("category name defaults to id: %+v %v", aux, err)
	}
	if _, err := parseAux([]string{"duration=soon"}); err == nil {
		t.Fatalf("bad duration must fail")
	}
	if _, err := parseAux([]string{"workout="}); err == nil {
		t.Fatalf("empty value must fail")
	}
}

func Test_prompt_StopsOnQuitAndEOF(t *testing.T) {
	t.Parallel()
	c := &fakeController{}
	var out bytes.Buffer
	noop := func(context.Context) error { return nil }

	in := make(chan string, 3)
	in <- "refresh"
	in <- "quit"
	in <- "refresh"
	if err := prompt(context.Background(), c, noop, in, &out); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if len(c.calls) != 1 {
		t.Fatalf("commands after quit must not run: %v", c.calls)
	}

	closed := make(chan string)
	close(closed)
	if err := prompt(context.Background(), c, noop, closed, &out); err != nil {
		t.Fatalf("prompt at EOF: %v", err)
	}

	c.refreshE = errors.New("offline")
	errs := make(chan string, 1)
	errs <- "refresh"
	close(errs)
	out.Reset()
	_ = prompt(context.Background(), c, noop, errs, &out)
	if !strings.Contains(out.String(), "error: offline") {
		t.Fatalf("errors must be printed, got %q", out.String())
	}
}

func Test_lines(t *testing.T) {
	t.Parallel()
	var got []string
	for l := range lines(context.Background(), strings.NewReader("a\nb\n")) {
		got = append(got, l)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("lines=%v", got)
	}
}

func Test_lines_StopsWhenCancelled(t *testing.T) {
	t.Parallel()
	const total = 1000
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan int)
	go func() {
		n := 0
		for range lines(ctx, strings.NewReader(strings.Repeat("x\n", total))) {
			n++
		}
		done <- n
	}()
	select {
	case n := <-done:
		if n == total {
			t.Fatalf("all lines delivered after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("lines did not close after cancel")
	}
}

func Test_watchOverlay(t *testing.T) {
	t.Parallel()
	c := &fakeController{}
	w := &syncWriter{w: &bytes.Buffer{}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchOverlay(ctx, c, w, time.Millisecond)
		close(done)
	}()

	c.setOverlay(true)
	waitFor(t, func() bool { return strings.Contains(written(w), "password setup required") })
	c.setOverlay(false)
	waitFor(t, func() bool { return strings.Contains(written(w), "password setup closed") })
	cancel()
	<-done
}

func written(w *syncWriter) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.(*bytes.Buffer).String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

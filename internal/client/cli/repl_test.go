package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  [][]string
}

func (f *fakeExec) note(name string, args []string) {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	f.note("register", nil)
	return nil
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.note("login", nil)
	f.loggedIn = true
	return nil
}
func (f *fakeExec) AddEntity(ctx context.Context) error {
	f.note("add", nil)
	return nil
}
func (f *fakeExec) AddCuration(ctx context.Context, args []string) error {
	f.note("curate", args)
	return nil
}
func (f *fakeExec) List(ctx context.Context, args []string) error {
	f.note("list", args)
	return nil
}
func (f *fakeExec) Show(ctx context.Context, args []string) error {
	f.note("show", args)
	return nil
}
func (f *fakeExec) Delete(ctx context.Context, args []string) error {
	f.note("delete", args)
	return nil
}
func (f *fakeExec) Sync(ctx context.Context) error {
	f.note("sync", nil)
	return nil
}
func (f *fakeExec) Conflicts(ctx context.Context) error {
	f.note("conflicts", nil)
	return nil
}
func (f *fakeExec) Resolve(ctx context.Context, args []string) error {
	f.note("resolve", args)
	return nil
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.note("logout", nil)
	f.loggedIn = false
	return nil
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"login",
		"help",
		"add",
		"list curations",
		"show entities abc",
		"sync",
		"foobar",
		"exit",
	}, "\n"))

	exec := &fakeExec{loggedIn: false}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "status" }, sc)

	wantOrder := []string{"login", "add", "list", "show", "sync"}
	idx := 0
	for _, c := range exec.calls {
		if idx < len(wantOrder) && c == wantOrder[idx] {
			idx++
		}
	}
	if idx != len(wantOrder) {
		t.Fatalf("commands order mismatch: got %v, want subseq %v", exec.calls, wantOrder)
	}
}

func TestRunREPL_ArgsForwarded(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"curate e1",
		"resolve entities e1 keepLocal",
		"quit",
	}, "\n"))

	exec := &fakeExec{loggedIn: true}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	if len(exec.calls) != 2 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	if got := exec.args[0]; len(got) != 1 || got[0] != "e1" {
		t.Fatalf("curate args: %v", got)
	}
	if got := exec.args[1]; len(got) != 3 || got[2] != "keepLocal" {
		t.Fatalf("resolve args: %v", got)
	}
}

func TestRunREPL_UnknownAndBlankLines(t *testing.T) {
	origPrint := printlnFn
	var lines []string
	printlnFn = func(a ...any) (int, error) {
		if len(a) > 0 {
			if s, ok := a[0].(string); ok {
				lines = append(lines, s)
			}
		}
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("\n   \nnope\nexit\n")
	exec := &fakeExec{loggedIn: true}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	found := false
	for _, l := range lines {
		if l == "Unknown command:" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no unknown-command message in %v", lines)
	}
}

func TestRunREPL_EOFStopsLoop(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("sync\n")
	exec := &fakeExec{loggedIn: true}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	if len(exec.calls) != 1 || exec.calls[0] != "sync" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

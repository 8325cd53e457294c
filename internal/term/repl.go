// Package term is the interactive front end. The prompt keeps the
// logical working directory and other session state, the engine stays
// stateless underneath it.
package term

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"webterm/internal/engine"
	"webterm/internal/history"
	"webterm/internal/logging"
)

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

type promptExit struct{}

// Session drives one interactive run. cwd is a root-relative logical
// path; it never leaves the process.
type Session struct {
	eng    *engine.Engine
	store  *history.Store
	cwd    string
	render *glamour.TermRenderer
	isTTY  bool
}

func NewSession(eng *engine.Engine, store *history.Store) *Session {
	var renderer *glamour.TermRenderer
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			renderer = r
		}
	}
	return &Session{
		eng:    eng,
		store:  store,
		render: renderer,
		isTTY:  term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Run blocks until the user exits or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Printf("webterm restricted shell, root %s\n", s.eng.Root())
	fmt.Println("Type 'help' for commands. Use double Ctrl+C or 'exit' to leave.")

	if s.isTTY {
		return s.runPrompt(ctx, cancel, newInterruptTracker(2*time.Second))
	}
	return s.runNonInteractive(ctx)
}

func (s *Session) runPrompt(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) (err error) {
	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if state, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, state) }
		}
	}
	if restore != nil {
		defer restore()
	}

	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		if exit := s.handleLine(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	var seed []string
	if s.store != nil {
		seed = s.store.Lines(200)
	}

	p := prompt.New(
		executor,
		s.completer,
		prompt.OptionHistory(seed),
		prompt.OptionTitle("webterm"),
		prompt.OptionLivePrefix(func() (string, bool) {
			where := s.cwd
			if where == "" {
				where = "/"
			}
			return fmt.Sprintf("[%s] > ", where), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if tracker.secondPress() {
						fmt.Println("\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Println("\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)

	p.Run()
	return nil
}

func (s *Session) runNonInteractive(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		where := s.cwd
		if where == "" {
			where = "/"
		}
		fmt.Printf("[%s] > ", where)

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if exit := s.handleLine(ctx, line); exit {
			return nil
		}
	}
}

func (s *Session) completer(doc prompt.Document) []prompt.Suggest {
	before := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
	if strings.ContainsAny(before, " \t") {
		return nil
	}
	suggestions := make([]prompt.Suggest, 0, len(builtinSuggestions)+8)
	for _, info := range s.eng.Commands() {
		suggestions = append(suggestions, prompt.Suggest{Text: info.Name, Description: info.Summary})
	}
	suggestions = append(suggestions, builtinSuggestions...)
	return prompt.FilterHasPrefix(suggestions, doc.GetWordBeforeCursor(), true)
}

var builtinSuggestions = []prompt.Suggest{
	{Text: "cd", Description: "change the prompt's working directory"},
	{Text: "history", Description: "show recently executed commands"},
	{Text: "help", Description: "show available commands"},
	{Text: "exit", Description: "leave the shell"},
	{Text: "quit", Description: "leave the shell"},
}

// handleLine dispatches one input line. Builtins stay in the session,
// everything else goes through the engine. Returns true to exit.
func (s *Session) handleLine(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "exit", "quit":
		fmt.Println("Bye.")
		return true
	case "help":
		s.printHelp()
		s.recordLine(line)
		return false
	case "history":
		s.printHistory()
		return false
	case "cd":
		s.changeDir(fields[1:])
		s.recordLine(line)
		return false
	}

	res, err := s.eng.Run(ctx, engine.Request{Raw: line, Cwd: s.cwd})
	if err != nil {
		fmt.Printf("error: %s\n", err)
		return false
	}
	s.recordLine(line)
	if res.Stdout != "" {
		fmt.Println(strings.TrimRight(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		fmt.Fprintln(os.Stderr, strings.TrimRight(res.Stderr, "\n"))
	}
	return false
}

func (s *Session) changeDir(args []string) {
	if len(args) == 0 || args[0] == "/" {
		s.cwd = ""
		return
	}
	if len(args) > 1 {
		fmt.Println("cd expects a single directory")
		return
	}
	next, err := s.eng.ValidateDir(args[0], s.cwd)
	if err != nil {
		fmt.Printf("cd: %s\n", err)
		return
	}
	s.cwd = next
}

func (s *Session) printHistory() {
	if s.store == nil {
		fmt.Println("history is disabled")
		return
	}
	entries, err := s.store.Recent(20)
	if err != nil {
		logging.WarnLog("failed to read history: %v", err)
		fmt.Println("history is unavailable")
		return
	}
	if len(entries) == 0 {
		fmt.Println("no history yet")
		return
	}
	for i, e := range entries {
		fmt.Printf("%3d  %s\n", i+1, e.Line)
	}
}

func (s *Session) printHelp() {
	var b strings.Builder
	b.WriteString("# Commands\n\n")
	for _, info := range s.eng.Commands() {
		fmt.Fprintf(&b, "- **%s**: %s\n", info.Name, info.Summary)
	}
	b.WriteString("\n# Shell builtins\n\n")
	for _, sg := range builtinSuggestions {
		fmt.Fprintf(&b, "- **%s**: %s\n", sg.Text, sg.Description)
	}
	text := b.String()
	if s.render != nil {
		if out, err := s.render.Render(text); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(text)
}

func (s *Session) recordLine(line string) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(line, s.cwd); err != nil {
		logging.WarnLog("failed to record history entry: %v", err)
	}
}

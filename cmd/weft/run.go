package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run flows in an interactive chat loop",
	Long:  `Starts a session over the flow files in the directory. User input is fed as utterance events; bot utterances and actions are printed. Timer actions fire for real.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		debug, _ := cmd.Flags().GetBool("debug")
		levelName, _ := cmd.Flags().GetString("log-level")
		jsonMode, _ := cmd.Flags().GetBool("json")

		var err error
		if jsonMode {
			err = runJSON(dir, levelName, debug)
		} else {
			err = runInteractive(dir, levelName, debug)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("debug", false, "Enable development checks (context write races)")
	runCmd.Flags().Bool("json", false, "Speak NDJSON events on stdin/stdout instead of the chat UI")

	// Make 'run' the default when no subcommand is given.
	rootCmd.Run = runCmd.Run
}

func printBanner() {
	p := termenv.ColorProfile()
	s1 := termenv.String("                 __ _   ").Foreground(p.Color("#818cf8"))
	s2 := termenv.String("  __      _____ / _| |_ ").Foreground(p.Color("#a78bfa"))
	s3 := termenv.String("  \\ \\ /\\ / / _ \\ |_| __|").Foreground(p.Color("#c084fc"))
	s4 := termenv.String("   \\ V  V /  __/  _| |_ ").Foreground(p.Color("#e879f9"))
	s5 := termenv.String("    \\_/\\_/ \\___|_|  \\__|").Foreground(p.Color("#f472b6"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}

// console styles and prints the engine's output events and synthesizes
// completions for the actions the CLI executes itself.
type console struct {
	profile termenv.Profile

	mu     sync.Mutex
	timers map[string]*time.Timer
	async  chan domain.Event
}

func newConsole() *console {
	return &console{
		profile: termenv.ColorProfile(),
		timers:  make(map[string]*time.Timer),
		async:   make(chan domain.Event, 16),
	}
}

// handle reacts to one emitted event and returns completions to feed
// straight back into the session.
func (c *console) handle(ev domain.Event) []domain.Event {
	if name, ok := domain.ActionNameFromStart(ev.Type); ok {
		switch name {
		case "UtteranceBot":
			text, _ := ev.StringArg("text")
			bot := termenv.String("bot> ").Foreground(c.profile.Color("#34d399")).Bold()
			fmt.Printf("%s%s\n", bot, text)
			return []domain.Event{finished(ev, "UtteranceBot", nil)}

		case "Timer":
			c.startTimer(ev)
			return nil

		default:
			label := termenv.String(fmt.Sprintf("[%s]", name)).Foreground(c.profile.Color("#fbbf24"))
			fmt.Printf("%s %v\n", label, ev.Arguments)
			return []domain.Event{finished(ev, name, nil)}
		}
	}

	if name, ok := domain.ActionNameFromStop(ev.Type); ok && name == "Timer" {
		c.stopTimer(ev.CorrelationID)
	}
	return nil
}

func (c *console) startTimer(ev domain.Event) {
	d := time.Second
	if secs, err := ev.NumberArg("duration"); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if raw, err := ev.StringArg("duration"); err == nil {
		if parsed, err := time.ParseDuration(raw); err == nil {
			d = parsed
		}
	}

	uid := ev.CorrelationID
	c.mu.Lock()
	c.timers[uid] = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, uid)
		c.mu.Unlock()
		c.async <- finished(ev, "Timer", nil)
	})
	c.mu.Unlock()
}

func (c *console) stopTimer(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.timers[uid]; t != nil {
		t.Stop()
		delete(c.timers, uid)
	}
}

func finished(start domain.Event, name string, returnValue any) domain.Event {
	return domain.Event{
		Type:          domain.FinishedEventType(name),
		CorrelationID: start.CorrelationID,
		Loop:          start.Loop,
		Arguments: map[string]any{
			"status":       domain.ActionStatusSuccess,
			"return_value": returnValue,
		},
	}
}

// runJSON drives the session over NDJSON: one event per line in both
// directions, with the host completing actions. Logs go to stderr so
// stdout stays parseable.
func runJSON(dir, levelName string, debug bool) error {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	engine, err := weft.New(dir, weft.WithLogger(logger), weft.WithDebug(debug))
	if err != nil {
		return err
	}

	r := runner.New(engine,
		runner.WithLogger(logger),
		runner.WithIOHandler(runner.NewJSONHandler(os.Stdin, os.Stdout)),
		runner.WithInterceptor(runner.SanitizeInterceptor("final_transcript", "text")),
	)
	return r.Run(context.Background())
}

func runInteractive(dir, levelName string, debug bool) error {
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	engine, err := weft.New(dir, weft.WithLogger(logger), weft.WithDebug(debug))
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, events, err := engine.NewSession(ctx, "")
	if err != nil {
		return err
	}

	printBanner()
	fmt.Println("Type your message, or 'exit' to quit.")
	fmt.Println()

	c := newConsole()

	// dispatch prints emitted events and loops synchronous completions
	// back in until the session settles.
	dispatch := func(events []domain.Event) error {
		for len(events) > 0 {
			var completions []domain.Event
			for _, ev := range events {
				completions = append(completions, c.handle(ev)...)
			}
			events = nil
			for _, comp := range completions {
				out, err := sess.Process(ctx, comp)
				if err != nil {
					return err
				}
				events = append(events, out...)
			}
		}
		return nil
	}

	if err := dispatch(events); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	prompt := termenv.String("you> ").Foreground(c.profile.Color("#60a5fa")).Bold()
	fmt.Print(prompt)

	for {
		select {
		case ev := <-c.async:
			out, err := sess.Process(ctx, ev)
			if err != nil {
				return err
			}
			if err := dispatch(out); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				fmt.Println("Bye!")
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "exit" || text == "quit" {
				fmt.Println("Bye!")
				return nil
			}
			if text != "" {
				out, err := sess.Process(ctx, domain.Event{
					Type:      "UtteranceUserActionFinished",
					Arguments: map[string]any{"final_transcript": text},
				})
				if err != nil {
					return err
				}
				if err := dispatch(out); err != nil {
					return err
				}
			}
			fmt.Print(prompt)
		}
	}
}

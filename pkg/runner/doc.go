/*
Package runner implements the interactive execution loop for a weft
engine.

It bridges a session and the outside world: user input becomes
utterance events, emitted action events are presented back, and the
session is saved after every turn when the engine has a state store.
IO is pluggable through the IOHandler strategy, with a text mode for
terminals and an NDJSON mode for host processes driving the engine
over a pipe.

# Usage

	r := runner.New(engine,
		runner.WithSessionID("user-1"),
		runner.WithIOHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner

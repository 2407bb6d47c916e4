/*
Package weft is a conversational flow execution engine.

Flows are written in a YAML DSL and compiled to flat statement
programs. A session executes many flow instances concurrently over a
shared conversation context: flows block on event patterns, send
actions on named channels, fork into racing branches and start child
flows. When several flows want the same channel in the same cycle, the
engine picks exactly one winner by match specificity, priority and
registration order, and aborts the losers with their side effects
rolled back.

The engine never performs actions itself. Processing an event returns
the Start and Stop events of the actions the host should execute; the
host feeds the paired Finished events back in when actions complete.
This makes sessions deterministic and snapshot-friendly: the same flows
and the same event sequence always produce the same output events.

Basic usage:

	engine, err := weft.New("./flows")
	if err != nil { ... }
	sess, greeting, err := engine.NewSession(ctx, "")
	if err != nil { ... }
	out, err := sess.Process(ctx, domain.Event{
		Type:      "UtteranceUserActionFinished",
		Arguments: map[string]any{"final_transcript": "hi"},
	})

Sessions survive restarts through a StateStore (in-memory, filesystem
or Redis adapters are provided) and can be coordinated across replicas
with a DistributedLocker.
*/
package weft

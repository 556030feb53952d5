// Arena CLI - Command line spectator client for the LLM gladiator arena
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rsproule/llm-gladiators/clients/go/arena"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("ARENA_URL")
	client := arena.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "matches":
		resp, err := client.ListMatches(20, 0)
		exitOnError(err)
		for _, m := range resp.Matches {
			outcome := m.Status
			if m.Winner != "" {
				outcome = fmt.Sprintf("%s (%s)", m.Winner, m.WinnerReason)
			}
			fmt.Printf("  %s  turns=%d  %s\n", m.MatchID, m.TotalTurns, outcome)
		}

	case "show":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: arena show <match_id>")
			os.Exit(1)
		}
		m, err := client.GetMatch(os.Args[2])
		exitOnError(err)
		printJSON(m)

	case "fight":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: arena fight <offense_gladiator_id> <defense_gladiator_id>")
			os.Exit(1)
		}
		resp, err := client.CreateMatch(arena.CreateMatchRequest{
			OffenseID: os.Args[2],
			DefenseID: os.Args[3],
			CreatedBy: "arena-cli",
		})
		exitOnError(err)
		fmt.Printf("Match queued: %s\n", resp.MatchID)

	case "watch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: arena watch <match_id>")
			os.Exit(1)
		}
		watch(client, os.Args[2])

	case "gladiators":
		resp, err := client.ListGladiators()
		exitOnError(err)
		for _, g := range resp.Gladiators {
			fmt.Printf("  %s  %s (%s/%s)\n", g.ID, g.Name, g.Provider, g.Model)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch renders each snapshot as a redrawn transcript until the match ends.
func watch(client *arena.Client, matchID string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := client.Watch(ctx, matchID, func(snap arena.TranscriptSnapshot) {
		fmt.Print("\033[H\033[2J") // clear screen
		fmt.Printf("match %s [%s]\n\n", matchID, snap.Status)
		for _, e := range snap.Messages {
			marker := "…"
			if e.Done {
				marker = " "
			}
			fmt.Printf("[%s]%s %s\n", e.Agent, marker, e.Text)
		}
	})
	if err != nil && ctx.Err() == nil {
		exitOnError(err)
	}
}

func usage() {
	fmt.Println(`Arena CLI - LLM gladiator arena spectator

Usage: arena <command> [options]

Commands:
  fight <offense> <defense>   Queue a match between two stored gladiators
  watch <match_id>            Stream a live transcript
  show <match_id>             Get a match record
  matches                     List recent matches
  gladiators                  List stored gladiators
  health                      Check server health

Environment:
  ARENA_URL     Server URL (default: http://localhost:8080)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

package player

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

const helperEnv = "MATCHBOX_PLAYER_HELPER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode))
	}
	os.Exit(m.Run())
}

// helperProgram re-executes the test binary as a scripted player.
func helperProgram(mode string) Program {
	return Program{
		Path: os.Args[0],
		Args: []string{"-test.run=^$"},
		Env:  []string{helperEnv + "=" + mode},
	}
}

func runHelper(mode string) int {
	out := bufio.NewWriter(os.Stdout)
	say := func(line string) {
		fmt.Fprintln(out, line)
		out.Flush()
	}

	switch mode {
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		say(`{"status":"ready"}`)
		time.Sleep(time.Minute)
		return 0
	case "deaf":
		say(`{"status":"ready"}`)
		time.Sleep(time.Minute)
		return 0
	case "no-ready":
		time.Sleep(time.Minute)
		return 0
	case "exit-now":
		fmt.Fprintln(os.Stderr, "cannot start")
		return 4
	}

	say(`{"status":"ready"}`)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var msg struct {
			Type      string `json:"type"`
			TimeIndex int    `json:"time_index"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			fmt.Fprintf(os.Stderr, "bad input: %v\n", err)
			return 1
		}
		switch msg.Type {
		case "game_over":
			return 0
		case "your_turn":
		default:
			continue
		}
		fmt.Fprintf(os.Stderr, "thinking about %d\n", msg.TimeIndex)
		switch mode {
		case "mover":
			say(fmt.Sprintf(`{"move":%d}`, msg.TimeIndex))
		case "silent":
		case "garbage":
			say("e2e4 please")
		case "wrong-kind":
			say(`{"status":"ready"}`)
		case "crash":
			fmt.Fprintln(os.Stderr, "boom")
			return 3
		case "late":
			time.Sleep(300 * time.Millisecond)
			say(fmt.Sprintf(`{"move":%d}`, msg.TimeIndex))
		}
	}
	return 0
}

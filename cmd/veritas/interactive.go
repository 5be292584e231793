package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"veritas/internal/chat"
	"veritas/internal/config"
	"veritas/internal/logging"
	"veritas/internal/parser"
)

// RunInteractive drives the line-oriented REPL described in spec §6:
// quit|exit|bye, help [cmd], retract ID ATTR VAL, explain ID ATTR VAL,
// run <clauses>, clear, and otherwise a free-form chat prompt routed to
// the external LLM (only active with OPENAI_API_KEY set, gated by a
// one-time confirmation).
func RunInteractive(prog *Program, sourcePath string) error {
	var chatClient *chat.Client
	if key, ok := config.OpenAIAPIKey(); ok {
		if c, okClient := chat.NewClient(key, prog.chatModel()); okClient {
			chatClient = c
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if werr := watcher.Add(sourcePath); werr != nil {
			prog.Log.Warn(logging.CategoryParse, fmt.Sprintf("could not watch %s: %v", sourcePath, werr))
		}
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("veritas interactive shell. Type 'help' for commands.")

	for {
		select {
		case ev := <-watcherEvents(watcher):
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				fmt.Printf("reloading %s\n", sourcePath)
				if err := prog.LoadFile(sourcePath); err != nil {
					prog.Log.Warn(logging.CategoryParse, fmt.Sprintf("reload failed: %v", err))
				}
			}
		default:
		}

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "quit", "exit", "bye":
			return nil

		case "help":
			printHelp(fields[1:])

		case "clear":
			fmt.Print("\033[H\033[2J")

		case "retract":
			w, err := parser.ParseRetractArgs(fields[1:])
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := prog.Retract(w); err != nil {
				fmt.Println(err)
			}

		case "explain":
			w, err := parser.ParseRetractArgs(fields[1:])
			if err != nil {
				fmt.Println("usage: explain ID ATTR VAL")
				continue
			}
			fmt.Print(prog.Explain(w))

		case "run":
			clauses := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
			if err := prog.RunClauses(clauses); err != nil {
				fmt.Println(err)
			}

		default:
			handleChat(chatClient, line)
		}
	}
}

// watcherEvents returns w.Events if w is non-nil, or a nil channel
// (which blocks forever in a select) if watching could not be set up.
func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func (p *Program) chatModel() string {
	if p.chatModelName != "" {
		return p.chatModelName
	}
	return "gpt-4o-mini"
}

func handleChat(c *chat.Client, prompt string) {
	if c == nil {
		fmt.Println("chat is unavailable: set OPENAI_API_KEY to enable it")
		return
	}
	if !c.Confirmed() {
		fmt.Print("This will send your input to an external LLM. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("chat declined for this session")
			return
		}
		c.Confirm()
	}
	reply, err := c.Translate(context.Background(), chat.SystemPrompt, prompt)
	if err != nil {
		fmt.Println("chat error:", err)
		return
	}
	fmt.Println(reply)
}

func printHelp(topic []string) {
	if len(topic) == 0 {
		fmt.Println(`Commands:
  quit | exit | bye           leave the shell
  help [cmd]                  show this message, or help for one command
  retract ID ATTR VAL         withdraw an axiomatic or defuzzification justification
  explain ID ATTR VAL         print the justification tree for a wme
  run <clauses>                parse and execute clauses against the live working memory
  clear                        clear the terminal
  anything else                routed to the chat assistant, if OPENAI_API_KEY is set`)
		return
	}
	switch topic[0] {
	case "retract":
		fmt.Println("retract ID ATTR VAL — removes one axiomatic/defuzzification justification of the wme; if none remain, the wme is removed and the knowledge base re-stabilizes.")
	case "explain":
		fmt.Println("explain ID ATTR VAL — prints a justification tree rooted at the wme.")
	case "run":
		fmt.Println("run <clauses> — parses and executes the clause on the rest of the line (a fact, production or query) immediately.")
	default:
		fmt.Printf("no help available for %q\n", topic[0])
	}
}

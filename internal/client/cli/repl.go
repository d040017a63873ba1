package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	To(ctx context.Context, recipientID string) error
	Open(ctx context.Context, conversationID string) error
	Send(ctx context.Context, text string) error
	History(ctx context.Context, page string) error
	Read(ctx context.Context) error
}

// runREPL reads commands until EOF or exit/quit. Handlers report their own
// errors, so they are ignored here.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cn> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if !a.isLoggedIn() {
			switch cmd {
			case "help":
				printlnFn("Available commands: login, exit")
			case "login":
				_ = a.Login(ctx)
			case "exit", "quit":
				printlnFn("Bye!")
				return
			default:
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "help":
			printlnFn("Available commands: to <userId>, open <conversationId>, send <text>, history [page], read, logout, exit")
		case "to":
			_ = a.To(ctx, rest)
		case "open":
			_ = a.Open(ctx, rest)
		case "send", "s":
			_ = a.Send(ctx, rest)
		case "history", "h":
			_ = a.History(ctx, rest)
		case "read":
			_ = a.Read(ctx)
		case "logout":
			_ = a.Logout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Dialogs(ctx context.Context) error
	Open(ctx context.Context, peerID string) error
	Send(ctx context.Context, peerID, text string) error
	Upload(ctx context.Context, peerID, path string) error
	Uploads(ctx context.Context) error
	CancelUpload(ctx context.Context, id string) error
	ResumeUpload(ctx context.Context, id string) error
	QuietHours(ctx context.Context, args []string) error
	Theme(ctx context.Context, args []string) error
}

// runREPL starts a simple read–eval–print loop for the Marketgram CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("mg (%s)> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (d)ialogs, open <user>, send <user> <text>, upload <user> <file>, uploads, resume <id>, cancel <id>, quiet, theme, logout, exit")
			} else {
				printlnFn("Available commands: login, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "d", "dialogs":
			_ = a.Dialogs(ctx)

		case "open":
			if len(args) != 1 {
				printlnFn("Usage: open <user>")
				continue
			}
			_ = a.Open(ctx, args[0])

		case "send":
			if len(args) < 2 {
				printlnFn("Usage: send <user> <text>")
				continue
			}
			_ = a.Send(ctx, args[0], strings.Join(args[1:], " "))

		case "upload":
			if len(args) != 2 {
				printlnFn("Usage: upload <user> <file>")
				continue
			}
			_ = a.Upload(ctx, args[0], args[1])

		case "uploads":
			_ = a.Uploads(ctx)

		case "resume":
			if len(args) != 1 {
				printlnFn("Usage: resume <id>")
				continue
			}
			_ = a.ResumeUpload(ctx, args[0])

		case "cancel":
			if len(args) != 1 {
				printlnFn("Usage: cancel <id>")
				continue
			}
			_ = a.CancelUpload(ctx, args[0])

		case "quiet":
			_ = a.QuietHours(ctx, args)

		case "theme":
			_ = a.Theme(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

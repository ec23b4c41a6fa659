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
	isUnlocked() bool
	Unlock(ctx context.Context) error
	Admin(ctx context.Context) error
	Lock(ctx context.Context) error
	Rotate(ctx context.Context) error
	SetAdmin(ctx context.Context) error
	Ls(ctx context.Context, folderID string) error
	Open(ctx context.Context, id string) error
	Save(ctx context.Context, id string) error
	SaveLocal(ctx context.Context, id string) error
	Flush(ctx context.Context) error
	Sync(ctx context.Context) error
	Mkdir(ctx context.Context, name, parentID string) error
	NewFile(ctx context.Context, name, parentID string) error
	Rename(ctx context.Context, id, newName string) error
	Trash(ctx context.Context, id string) error
}

// runREPL starts a simple read-eval-print loop for the SecureText CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Command errors are printed and the loop continues; a failed save or a
// locked vault never terminates the session.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("st> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		arg := func(i int) string {
			if i < len(args) {
				return args[i]
			}
			return ""
		}

		var err error
		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: ls [folder], open <id>, save <id>, savelocal <id>, flush, sync, mkdir <name> [parent], newfile <name> [parent], rename <id> <name>, trash <id>, admin, setadmin, rotate, lock, exit")
			} else {
				printlnFn("Available commands: unlock, exit")
			}

		case "unlock":
			err = a.Unlock(ctx)

		case "admin":
			err = a.Admin(ctx)

		case "setadmin":
			err = a.SetAdmin(ctx)

		case "rotate":
			err = a.Rotate(ctx)

		case "lock":
			err = a.Lock(ctx)

		case "l", "ls":
			err = a.Ls(ctx, arg(0))

		case "open":
			if len(args) == 0 {
				printlnFn("Usage: open <id>")
				continue
			}
			err = a.Open(ctx, args[0])

		case "save":
			if len(args) == 0 {
				printlnFn("Usage: save <id>")
				continue
			}
			err = a.Save(ctx, args[0])

		case "savelocal":
			if len(args) == 0 {
				printlnFn("Usage: savelocal <id>")
				continue
			}
			err = a.SaveLocal(ctx, args[0])

		case "flush":
			err = a.Flush(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "mkdir":
			if len(args) == 0 {
				printlnFn("Usage: mkdir <name> [parent]")
				continue
			}
			err = a.Mkdir(ctx, args[0], arg(1))

		case "newfile":
			if len(args) == 0 {
				printlnFn("Usage: newfile <name> [parent]")
				continue
			}
			err = a.NewFile(ctx, args[0], arg(1))

		case "rename":
			if len(args) < 2 {
				printlnFn("Usage: rename <id> <name>")
				continue
			}
			err = a.Rename(ctx, args[0], args[1])

		case "trash":
			if len(args) == 0 {
				printlnFn("Usage: trash <id>")
				continue
			}
			err = a.Trash(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}

// Command flag_tool hides messages from the minitwit timelines.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/sirupsen/logrus"

	"minitwit/internal/config"
	"minitwit/internal/logging"
	"minitwit/internal/storage"
)

const usage = `ITU-Minitwit Tweet Flagging Tool

Usage:
  flag_tool <tweet_id>...
  flag_tool -i
  flag_tool -s
  flag_tool -h
Options:
  -h            Show this screen.
  -i            Dump all tweets and authors to STDOUT.
  -s            Start an interactive flagging shell.`

const dumpLine = `{{ id }},{{ author_id }},{{ text|safe }},{{ flagged }}`

var logger = logrus.New()

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "-h" {
		fmt.Println(usage)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger = logging.New(cfg.Debug)

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can't open database: %s\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch args[0] {
	case "-i":
		if err := dumpMessages(ctx, db, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "SQL error: %s\n", err)
			os.Exit(1)
		}
	case "-s":
		if err := shell(ctx, db); err != nil {
			logger.WithError(err).Fatal("Shell failed")
		}
	default:
		if failed := flagMessages(ctx, db, args, os.Stdout, os.Stderr); failed > 0 {
			os.Exit(1)
		}
	}
}

// flagMessages flags every id in ids and returns the number of ids that could
// not be flagged.
func flagMessages(ctx context.Context, db storage.Store, ids []string, out, errOut io.Writer) int {
	failed := 0
	for _, arg := range ids {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Fprintf(errOut, "Invalid tweet ID: %s\n", arg)
			failed++
			continue
		}
		err = db.FlagMessage(ctx, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Fprintf(errOut, "No such tweet: %d\n", id)
			failed++
		case err != nil:
			fmt.Fprintf(errOut, "SQL error: %s\n", err)
			failed++
		default:
			logger.WithField("message_id", id).Info("Message flagged")
			fmt.Fprintf(out, "Flagged entry: %d\n", id)
		}
	}
	return failed
}

// dumpMessages writes one id,author_id,text,flagged line per stored message.
func dumpMessages(ctx context.Context, db storage.Store, w io.Writer) error {
	messages, err := db.AllMessages(ctx)
	if err != nil {
		return err
	}
	tpl, err := gonja.FromString(dumpLine)
	if err != nil {
		return fmt.Errorf("failed to parse dump template: %w", err)
	}
	for _, m := range messages {
		flagged := 0
		if m.Flagged {
			flagged = 1
		}
		line, err := tpl.ExecuteToString(exec.NewContext(map[string]interface{}{
			"id":        m.MessageID,
			"author_id": m.AuthorID,
			"text":      m.Text,
			"flagged":   flagged,
		}))
		if err != nil {
			return fmt.Errorf("failed to render message %d: %w", m.MessageID, err)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func shell(ctx context.Context, db storage.Store) error {
	rl, err := readline.New("flag> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if quit := runCommand(ctx, db, line, rl.Stdout(), rl.Stderr()); quit {
			return nil
		}
	}
}

// runCommand executes one shell line and reports whether the shell should exit.
func runCommand(ctx context.Context, db storage.Store, line string, out, errOut io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(out, "Commands: flag <tweet_id>..., dump, help, quit")
	case "dump":
		if err := dumpMessages(ctx, db, out); err != nil {
			fmt.Fprintf(errOut, "SQL error: %s\n", err)
		}
	case "flag":
		flagMessages(ctx, db, fields[1:], out, errOut)
	default:
		// Bare ids behave like the command line form.
		flagMessages(ctx, db, fields, out, errOut)
	}
	return false
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/kartikbazzad/logdb/internal/config"
	"github.com/kartikbazzad/logdb/internal/logger"
	"github.com/kartikbazzad/logdb/internal/record"
	"github.com/kartikbazzad/logdb/pkg/handler"
)

const prompt = "logdb> "

// logdbsh is an interactive ingest shell: each line becomes one log record
// emitted through the buffered handler. Line format:
//
//	[level] message text [key=value ...]
//
// plus dot commands: .flush, .help, .quit.
func main() {
	dbPath := flag.String("db", "./logs.db", "Path to the SQLite database file")
	table := flag.String("table", "logs", "Target table for inserts")
	capacity := flag.Int("capacity", 100, "Record count triggering an immediate flush")
	interval := flag.Duration("flush-interval", 2*time.Second, "Time between background flushes")
	flag.Parse()

	cfg := config.DefaultConfig()
	cfg.Path = *dbPath
	cfg.TableName = *table
	cfg.Capacity = *capacity
	cfg.FlushInterval = *interval

	fmt.Printf("logdb shell\n")
	fmt.Printf("Writing to %s (table %s). Type '.help' for commands.\n\n", *dbPath, *table)

	h, err := handler.New(cfg, logger.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open handler: %v\n", err)
		os.Exit(1)
	}
	defer h.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	ctx := context.Background()
	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case ".quit", ".exit":
			return
		case ".help":
			printHelp()
			continue
		case ".flush":
			if err := h.Flush(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "flush: %v\n", err)
			} else {
				fmt.Println("flushed")
			}
			continue
		}

		rec := parseLine(input)
		if err := h.Emit(ctx, rec); err != nil {
			fmt.Fprintf(os.Stderr, "emit: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Println("  <message>                  emit at INFO")
	fmt.Println("  <level> <message> [k=v]    emit at level (debug|info|warning|error|critical)")
	fmt.Println("  .flush                     force a drain and write")
	fmt.Println("  .quit                      flush remaining records and exit")
}

func parseLine(input string) *record.Record {
	level := record.LevelInfo
	words := strings.Fields(input)

	if len(words) > 1 {
		if l, ok := parseLevel(words[0]); ok {
			level = l
			words = words[1:]
		}
	}

	// Trailing key=value tokens become extra attributes.
	extra := map[string]any{}
	for len(words) > 1 {
		last := words[len(words)-1]
		k, v, ok := strings.Cut(last, "=")
		if !ok || k == "" {
			break
		}
		if n, err := strconv.Atoi(v); err == nil {
			extra[k] = n
		} else {
			extra[k] = v
		}
		words = words[:len(words)-1]
	}

	rec := record.New(level, "logdbsh", strings.Join(words, " "))
	rec.ProcessID = os.Getpid()
	rec.ProcessName = "logdbsh"
	if len(extra) > 0 {
		rec.Extra = extra
	}
	return rec
}

func parseLevel(word string) (int, bool) {
	switch strings.ToLower(word) {
	case "debug":
		return record.LevelDebug, true
	case "info":
		return record.LevelInfo, true
	case "warn", "warning":
		return record.LevelWarning, true
	case "error":
		return record.LevelError, true
	case "critical", "fatal":
		return record.LevelCritical, true
	default:
		return 0, false
	}
}

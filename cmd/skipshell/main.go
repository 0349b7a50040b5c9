// Command skipshell is an interactive REPL for manual inspection of an
// open store (get/scan/put/del/stats), grounded on calvinalkan-agent-task's
// cmd/sloty REPL shape: peterh/liner for history and line editing, a flat
// command switch, and a completer listing the command set.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/arkdb/skipstore"
)

func main() {
	path := pflag.StringP("path", "p", "", "store file to open")
	create := pflag.BoolP("create", "c", false, "create the file if it does not exist")
	pflag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: skipshell --path <file> [--create]")
		os.Exit(2)
	}

	flags := skipstore.OrderedBytes
	if *create {
		flags |= skipstore.Create
	}
	h, err := skipstore.Open(*path, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "skipshell: open:", err)
		os.Exit(1)
	}
	defer h.Close()

	repl := &shell{handle: h, path: *path}
	if err := repl.run(); err != nil {
		fmt.Fprintln(os.Stderr, "skipshell:", err)
		os.Exit(1)
	}
}

type shell struct {
	handle *skipstore.Handle
	path   string
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".skipshell_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("skipshell - %s\n", s.path)
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := s.liner.Prompt("skipshell> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			s.saveHistory()
			return nil
		case "help", "?":
			s.printHelp()
		case "get":
			s.cmdGet(args)
		case "put":
			s.cmdPut(args)
		case "del", "delete":
			s.cmdDel(args)
		case "scan":
			s.cmdScan(args)
		case "stats":
			s.cmdStats()
		default:
			fmt.Printf("unknown command: %s (type 'help')\n", cmd)
		}
	}

	s.saveHistory()
	return nil
}

func (s *shell) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		s.liner.WriteHistory(f)
		f.Close()
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{"get", "put", "del", "delete", "scan", "stats", "help", "exit", "quit", "q"}
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  get <key>               Fetch a value")
	fmt.Println("  put <key> <value>       Store a value (insert or replace)")
	fmt.Println("  del <key>               Delete a key")
	fmt.Println("  scan [prefix] [limit]   List keys in order, optionally by prefix")
	fmt.Println("  stats                   Show the live record count")
	fmt.Println("  help                    Show this help")
	fmt.Println("  exit / quit / q         Exit")
}

func (s *shell) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <key>")
		return
	}
	value, err := skipstore.Fetch(s.handle, []byte(args[0]))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(string(value))
}

func (s *shell) cmdPut(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}
	if err := skipstore.Store(s.handle, []byte(args[0]), []byte(args[1]), nil); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (s *shell) cmdDel(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <key>")
		return
	}
	if err := skipstore.Delete(s.handle, []byte(args[0]), nil, false); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (s *shell) cmdScan(args []string) {
	var prefix string
	limit := -1
	if len(args) >= 1 {
		prefix = args[0]
	}
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			limit = n
		}
	}

	count := 0
	err := skipstore.Foreach(s.handle, []byte(prefix), nil, func(key, value []byte) (bool, error) {
		fmt.Printf("%s = %s\n", key, value)
		count++
		if limit >= 0 && count >= limit {
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		fmt.Println("error:", err)
	}
}

func (s *shell) cmdStats() {
	var count int
	err := skipstore.Foreach(s.handle, nil, nil, func(key, value []byte) (bool, error) {
		count++
		return true, nil
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("live records: %d\n", count)
}

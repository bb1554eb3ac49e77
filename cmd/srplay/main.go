// srplay is an interactive CLI for bootstrapping a registry repository,
// storing a schema tree, and inspecting the running registry: module
// list, dependencies, RPC lookup, and connection liveness.
//
// Usage:
//
//	srplay [-C dir] [--repo-root dir]
//
// Commands (in REPL):
//
//	store <schema.json>          Build the registry from a schema tree file
//	modules                      List module names
//	show <module>                Show one module's decoded record
//	find-rpc <xpath>              Locate an RPC by full path
//	conn-register <cid>           Register a connection as alive
//	conn-check <cid>              Check a connection's liveness
//	conn-unregister <cid>         Unregister a connection
//	help                          Show this help
//	exit / quit / q               Exit
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/myonlystarWang/sysrepo/internal/clt"
	"github.com/myonlystarWang/sysrepo/internal/config"
	"github.com/myonlystarWang/sysrepo/internal/createlock"
	"github.com/myonlystarWang/sysrepo/internal/extshm"
	"github.com/myonlystarWang/sysrepo/internal/msr"
	"github.com/myonlystarWang/sysrepo/internal/pathutil"
	"github.com/myonlystarWang/sysrepo/internal/schema"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("srplay", flag.ContinueOnError)

	workDir := fs.StringP("chdir", "C", ".", "working directory to resolve config from")
	repoRoot := fs.String("repo-root", "", "repository root (overrides config)")
	configPath := fs.String("config", "", "explicit config file path")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: srplay [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	cfg, _, err := config.Load(*workDir, *configPath, config.Config{RepoRoot: *repoRoot}, *repoRoot != "", os.Environ())
	if err != nil {
		return err
	}

	layout, err := pathutil.New(cfg.RepoRoot)
	if err != nil {
		return err
	}

	umask, err := config.ParseUmask(cfg.Umask)
	if err != nil {
		return err
	}

	reg, ext, created, err := createlock.Bootstrap(layout, umask, msr.Options{LockTimeout: cfg.LockTimeout()})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() { _ = reg.Arena().Close() }()

	tracker := clt.New(layout)

	repl := &REPL{
		reg:     reg,
		ext:     ext,
		tracker: tracker,
	}

	fmt.Printf("srplay - sysrepo registry CLI (repo_root=%s, created=%v)\n", cfg.RepoRoot, created)
	fmt.Println("Type 'help' for available commands.")

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	reg       *msr.Registry
	ext       *extshm.Arena
	tracker   *clt.Tracker
	liner     *liner.State
	lastTree  schema.Tree
	haveStore bool
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".srplay_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := r.liner.Prompt("srplay> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "store":
			r.cmdStore(args)

		case "dump":
			r.cmdDump(args)

		case "modules":
			r.cmdModules()

		case "show":
			r.cmdShow(args)

		case "find-rpc":
			r.cmdFindRPC(args)

		case "conn-register":
			r.cmdConnRegister(args)

		case "conn-check":
			r.cmdConnCheck(args)

		case "conn-unregister":
			r.cmdConnUnregister(args)

		case "notif-suspend":
			r.cmdNotifSuspend(args, true)

		case "notif-resume":
			r.cmdNotifSuspend(args, false)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"store", "dump", "modules", "show", "find-rpc",
		"conn-register", "conn-check", "conn-unregister",
		"notif-suspend", "notif-resume",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  store <schema.json>          Build the registry from a schema tree file")
	fmt.Println("  dump <schema.json>           Re-write the last stored schema tree to a file")
	fmt.Println("  modules                      List module names")
	fmt.Println("  show <module>                Show one module's decoded record")
	fmt.Println("  find-rpc <xpath>             Locate an RPC by full path")
	fmt.Println("  conn-register <cid>          Register a connection as alive")
	fmt.Println("  conn-check <cid>             Check a connection's liveness")
	fmt.Println("  conn-unregister <cid>        Unregister a connection")
	fmt.Println("  notif-suspend <mod> <subid>  Suspend a notification subscription")
	fmt.Println("  notif-resume <mod> <subid>   Resume a notification subscription")
	fmt.Println("  help                         Show this help")
	fmt.Println("  exit / quit / q              Exit")
}

func (r *REPL) cmdStore(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: store <schema.json>")
		return
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	tree, err := schema.LoadJSON(data)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	if err := r.reg.StoreModules(tree); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	r.lastTree, r.haveStore = tree, true

	fmt.Printf("stored %d modules\n", len(tree.Modules))
}

func (r *REPL) cmdDump(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: dump <schema.json>")
		return
	}

	if !r.haveStore {
		fmt.Println("no schema tree has been stored yet in this session")
		return
	}

	if err := schema.DumpJSON(args[0], r.lastTree); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("dumped %d modules to %s\n", len(r.lastTree.Modules), args[0])
}

func (r *REPL) cmdModules() {
	count, err := r.reg.ModCount()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	for i := uint32(0); i < count; i++ {
		m, err := r.reg.DecodeModule(i)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}

		fmt.Printf("%d: %s (rev=%s, replay=%v)\n", i, m.Name, m.Revision, m.ReplaySupport)
	}
}

func (r *REPL) cmdShow(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: show <module>")
		return
	}

	idx, found, err := r.reg.FindModule(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	if !found {
		fmt.Printf("module %q not found\n", args[0])
		return
	}

	m, err := r.reg.DecodeModule(idx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	out, _ := json.MarshalIndent(m, "", "  ")
	fmt.Println(string(out))
}

func (r *REPL) cmdFindRPC(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: find-rpc <xpath>")
		return
	}

	rpc, found, err := r.reg.FindRPC(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	if !found {
		fmt.Printf("rpc %q not found\n", args[0])
		return
	}

	out, _ := json.MarshalIndent(rpc, "", "  ")
	fmt.Println(string(out))
}

func parseCID(args []string) (uint32, bool) {
	if len(args) < 1 {
		fmt.Println("usage: <command> <cid>")
		return 0, false
	}

	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("invalid cid: %v\n", err)
		return 0, false
	}

	return uint32(n), true
}

func (r *REPL) cmdConnRegister(args []string) {
	cid, ok := parseCID(args)
	if !ok {
		return
	}

	if err := r.tracker.Register(cid); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("cid %d registered\n", cid)
}

func (r *REPL) cmdConnCheck(args []string) {
	cid, ok := parseCID(args)
	if !ok {
		return
	}

	status, err := r.tracker.Check(cid)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("alive=%v pid=%d\n", status.Alive, status.PID)
}

func (r *REPL) cmdNotifSuspend(args []string, suspend bool) {
	if len(args) < 2 {
		fmt.Println("usage: notif-suspend|notif-resume <module> <subid>")
		return
	}

	subID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Printf("invalid subid: %v\n", err)
		return
	}

	if err := r.reg.UpdateNotifSuspend(r.ext, args[0], uint32(subID), suspend); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("module %q subscription %d: suspended=%v\n", args[0], subID, suspend)
}

func (r *REPL) cmdConnUnregister(args []string) {
	cid, ok := parseCID(args)
	if !ok {
		return
	}

	if err := r.tracker.Unregister(cid); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Printf("cid %d unregistered\n", cid)
}

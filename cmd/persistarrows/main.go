package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/persistarrows/extension/internal/config"
	"github.com/persistarrows/extension/internal/simhost"
	"github.com/persistarrows/extension/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.1.0"
	BuildDate               string = "unknown"

	ExtensionName string = "persistarrows"
)

const usage = `usage: persistarrows [-config dir] [-worlds a,b] <command> [args]

commands:
  run <scenario.yaml>...    replay scenarios against a simulated host
  serve                     read "command|arg|arg" lines from stdin, answer on stdout
  migratebackups <dir>      copy sqlite journal dumps in dir into postgres
  version                   print version and build date
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(ExtensionName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config", ".", "directory containing "+config.FileName)
	worlds := fs.String("worlds", "overworld,the_nether,the_end", "comma separated worlds loaded in the simulated host")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch strings.ToLower(rest[0]) {
	case "version":
		fmt.Fprintln(stdout, CurrentExtensionVersion, BuildDate)
		return 0
	case "run":
		err = runScenarios(ctx, *configDir, rest[1:], stdout)
	case "serve":
		err = serve(ctx, *configDir, parseWorlds(*worlds), stdin, stdout)
	case "migratebackups":
		if len(rest) < 2 {
			fmt.Fprintln(stderr, "No backup directory provided.")
			return 2
		}
		err = migrateBackups(*configDir, rest[1])
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}

	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func parseWorlds(s string) []core.WorldRef {
	var out []core.WorldRef
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, core.WorldRef(w))
		}
	}
	return out
}

// runScenarios replays each scenario in its own session against a fresh
// simulated host and clock.
func runScenarios(ctx context.Context, configDir string, files []string, stdout io.Writer) error {
	if len(files) == 0 {
		return fmt.Errorf("no scenario files provided")
	}

	failed := 0
	for _, file := range files {
		sc, err := simhost.LoadScenario(file)
		if err != nil {
			return err
		}

		worlds := make([]core.WorldRef, len(sc.Worlds))
		for i, w := range sc.Worlds {
			worlds[i] = core.WorldRef(w)
		}
		clock := simhost.NewClock(time.Now().UTC())

		a, err := newApp(appOptions{
			ConfigDir: configDir,
			HostName:  "simhost:" + sc.Name,
			Worlds:    worlds,
			Now:       clock.Now,
		})
		if err != nil {
			return err
		}

		runner := simhost.NewRunner(a.host, clock, a.engine.Load(), a.logger.With("component", "scenario"))
		res, runErr := runner.Run(ctx, sc)
		closeErr := a.Close()

		if runErr != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", sc.Name, runErr)
		} else {
			fmt.Fprintf(stdout, "ok   %s (steps=%d ticks=%d respawned=%d expired=%d tracked=%d)\n",
				sc.Name, res.Steps, res.Ticks, res.Drained.Respawned, res.Drained.Expired, res.Stats.Tracked)
		}
		if closeErr != nil {
			fmt.Fprintf(stdout, "     %s: shutdown: %v\n", sc.Name, closeErr)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(files))
	}
	return nil
}

// serve answers host calls read line by line from in.
func serve(ctx context.Context, configDir string, worlds []core.WorldRef, in io.Reader, out io.Writer) error {
	a, err := newApp(appOptions{
		ConfigDir: configDir,
		HostName:  "stdio",
		Worlds:    worlds,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	w := bufio.NewWriter(out)
	defer w.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fmt.Fprintln(w, a.bridge.CallRaw(line))
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

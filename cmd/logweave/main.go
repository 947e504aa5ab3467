package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/logweave/logweave/pkg/pipeline"
	"github.com/logweave/logweave/pkg/profile"
	"github.com/logweave/logweave/pkg/store"
)

func main() {
	log := hclog.Default()
	if len(os.Args) <= 1 {
		usage()
		return
	}
	args := os.Args[1:]
	switch args[0] {
	case "run":
		start := time.Now()
		if err := doRun(log, args[1:]...); err != nil {
			exitError("Failed to consolidate: %v", err)
		}
		fmt.Printf("Consolidation finished in %s\n", roundDuration(time.Now().Sub(start)))
	case "follow":
		if err := doFollow(log, args[1:]...); err != nil {
			exitError("Follow failed: %v", err)
		}
	case "vet":
		if err := doVet(args[1:]...); err != nil {
			exitError("Configuration invalid: %v", err)
		}
		fmt.Println("Configuration is valid")
	case "help":
		usage()
	default:
		exitError("Unrecognized command: '%s'", args[0])
	}
}

func exitError(format string, args ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Printf("Error: "+format, args...)
	usage()
	os.Exit(-1)
}

func usage() {
	text := `
logweave consolidates many differently-formatted log files into one
time-ordered table.

  logweave help
  logweave run [-config FILE] [-profile NAME] [-out FILE] [-db FILE]
  logweave follow [-config FILE] [-profile NAME] [-out FILE]
  logweave vet [-config FILE]

The 'help' subcommand will print this usage information.
The 'run' subcommand parses, filters, and merges every file matched by the
profile's source pattern into one CSV file ordered by timestamp. With -db,
records are written to a SQLite database instead of CSV.
The 'follow' subcommand tails the matched files and streams consolidated
rows as new lines arrive, until interrupted.
The 'vet' subcommand validates the configuration file and reports the
first offending profile and field, without processing anything.

Merge fan-in, lookahead window, channel depth, and spill directory are
tunable through LOGWEAVE_* environment variables or a local .env file.
`
	fmt.Print(text)
}

func roundDuration(dur time.Duration) string {
	switch {
	case dur < time.Millisecond:
		return dur.Round(time.Microsecond).String()
	case dur < time.Second:
		return dur.Round(time.Millisecond).String()
	default:
		return dur.Round(time.Second).String()
	}
}

type commonFlags struct {
	config  string
	profile string
	out     string
}

func addCommon(fs *flag.FlagSet) *commonFlags {
	c := new(commonFlags)
	fs.StringVar(&c.config, "config", "", "Path to the configuration file (default logweave.yaml, then ~/.logweave.yaml)")
	fs.StringVar(&c.profile, "profile", profile.DefaultsName, "Profile to run")
	fs.StringVar(&c.out, "out", "consolidated.csv", "Output file, or '-' for stdout")
	return c
}

func loadProfile(c *commonFlags) (*profile.Profile, error) {
	path := c.config
	if path == "" {
		for _, candidate := range defaultConfigPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	var (
		set *profile.Set
		err error
	)
	if path == "" {
		set, err = profile.Load(strings.NewReader(""))
	} else {
		set, err = profile.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	prof, ok := set.Profile(c.profile)
	if !ok {
		return nil, fmt.Errorf("profile %q does not exist, have: %s", c.profile, strings.Join(sorted(set.Names()), ", "))
	}
	return prof, nil
}

func defaultConfigPaths() []string {
	paths := []string{"logweave.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".logweave.yaml"))
	}
	return paths
}

func sorted(names []string) []string {
	sort.Strings(names)
	return names
}

func doRun(log hclog.Logger, args ...string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	common := addCommon(fs)
	dbFile := fs.String("db", "", "Write records to this SQLite database instead of CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prof, err := loadProfile(common)
	if err != nil {
		return err
	}
	settings, err := pipeline.LoadSettings()
	if err != nil {
		return err
	}
	paths, err := pipeline.ResolveFiles(prof.SourceFiles)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No input files match %q\n", prof.SourceFiles)
		return nil
	}
	log.Info("Consolidating", "profile", prof.Name, "files", len(paths))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var sum *pipeline.Summary
	if *dbFile != "" {
		sum, err = runToStore(ctx, log, prof, paths, settings, *dbFile)
	} else {
		sum, err = runToCSV(ctx, log, prof, paths, settings, common.out)
	}
	if sum != nil {
		fmt.Printf("Lines read: %d, emitted: %d, filtered out: %d, bad timestamps: %d, skipped files: %d\n",
			sum.LinesRead.Load(), sum.Emitted.Load(), sum.FilteredOut.Load(),
			sum.BadTimestamps.Load(), sum.SkippedFiles.Load())
	}
	return err
}

func runToCSV(ctx context.Context, log hclog.Logger, prof *profile.Profile, paths []string, settings pipeline.Settings, out string) (*pipeline.Summary, error) {
	w, closeOut, err := openOutput(out)
	if err != nil {
		return nil, err
	}
	sum, n, err := pipeline.Run(ctx, log, prof, paths, w, settings)
	if cerr := closeOut(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		log.Info("Output written", "bytes", n, "records", sum.Emitted.Load())
	}
	return sum, err
}

func runToStore(ctx context.Context, log hclog.Logger, prof *profile.Profile, paths []string, settings pipeline.Settings, dbFile string) (*pipeline.Summary, error) {
	db, err := store.New(log, dbFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = db.Close()
	}()
	merged, sum, wait, err := pipeline.Consolidated(ctx, log, prof, paths, settings)
	if err != nil {
		return sum, err
	}
	err = db.Sink(ctx, merged, "consolidated", prof.OutputColumns)
	if werr := wait(); werr != nil && err == nil {
		err = werr
	}
	return sum, err
}

func openOutput(out string) (*os.File, func() error, error) {
	if out == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(out)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func doFollow(log hclog.Logger, args ...string) error {
	fs := flag.NewFlagSet("follow", flag.ExitOnError)
	common := addCommon(fs)
	common.out = "-"
	if err := fs.Parse(args); err != nil {
		return err
	}

	prof, err := loadProfile(common)
	if err != nil {
		return err
	}
	settings, err := pipeline.LoadSettings()
	if err != nil {
		return err
	}
	paths, err := pipeline.ResolveFiles(prof.SourceFiles)
	if err != nil {
		return err
	}
	w, closeOut, err := openOutput(common.out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Info("Following", "profile", prof.Name, "files", len(paths))

	_, err = pipeline.Follow(ctx, log, prof, paths, w, settings)
	if cerr := closeOut(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func doVet(args ...string) error {
	fs := flag.NewFlagSet("vet", flag.ExitOnError)
	common := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := loadProfile(common); err != nil {
		var cerr *profile.ConfigError
		if errors.As(err, &cerr) {
			return cerr
		}
		return err
	}
	return nil
}

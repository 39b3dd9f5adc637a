package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"lyrsync"
	"lyrsync/pkg/cmd/importlrc"
	"lyrsync/pkg/cmd/migrate"
	"lyrsync/pkg/cmd/regen"
	"lyrsync/pkg/cmd/run"
	"lyrsync/pkg/cmd/serve"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("lyrsync", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "lyrsync [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newRunCommand(),
			newServeCommand(),
			newRegenCommand(),
			newImportLRCCommand(),
			newSyncCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "lyrsync version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyrsync %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("LYRSYNC"),
		},
		ShortHelp: fmt.Sprintf("lyrsync %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

// fsRunVars registers the flags shared by every command that wires a
// pipeline.
func fsRunVars(fs *flag.FlagSet, cfg *run.Config) {
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")

	fs.StringVar(&cfg.GeniusToken, "genius-token", "", "genius api token")
	fs.DurationVar(&cfg.GeniusWait, "genius-wait", 1*time.Second, "wait time between genius requests")
	fs.StringVar(&cfg.Artist, "artist", "", "catalog artist name")
	fs.StringVar(&cfg.Collaborators, "collaborators", "", "accepted collaborator names (comma separated)")

	fs.StringVar(&cfg.AssemblyAIKey, "assemblyai-key", "", "assemblyai api key")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 3*time.Second, "transcript poll interval")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", 5*time.Minute, "transcript poll timeout")

	fs.StringVar(&cfg.AudioStoreType, "audio-type", "", "audio store type (base, s3)")
	fs.StringVar(&cfg.AudioStoreConn, "audio-conn", "", "base url, or key:secret@region/bucket for s3")

	fs.IntVar(&cfg.RetrievalWorkers, "retrieval-workers", 0, "retrieval worker count")
	fs.IntVar(&cfg.AlignmentWorkers, "alignment-workers", 0, "alignment worker count")
}

func newRunCommand() *ffcli.Command {
	cmd := "run"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &run.Config{}
	fsRunVars(fs, cfg)
	fs.StringVar(&cfg.Stage, "stage", "all", "stage to run (all, retrieval, alignment)")
	fs.BoolVar(&cfg.Force, "force", false, "re-time songs with auto generated canonical versions")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyrsync %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("LYRSYNC"),
		},
		ShortHelp: fmt.Sprintf("lyrsync %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return run.Run(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &serve.Config{}
	fsRunVars(fs, &cfg.Config)
	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "credentials to use (semicolon separated) Example: user1:pass1;user2:pass2")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyrsync %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("LYRSYNC"),
		},
		ShortHelp: fmt.Sprintf("lyrsync %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return serve.Serve(ctx, cfg)
		},
	}
}

func newRegenCommand() *ffcli.Command {
	cmd := "regen"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &regen.Config{}
	fsRunVars(fs, &cfg.Config)
	fs.StringVar(&cfg.SongID, "song", "", "song id to regenerate")
	fs.StringVar(&cfg.Output, "output", "", "optional lrc output file")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyrsync %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("LYRSYNC"),
		},
		ShortHelp: fmt.Sprintf("lyrsync %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return regen.Run(ctx, cfg)
		},
	}
}

func newImportLRCCommand() *ffcli.Command {
	cmd := "import-lrc"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &importlrc.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.SongID, "song", "", "song id to import into")
	fs.StringVar(&cfg.Input, "input", "", "lrc input file")
	fs.StringVar(&cfg.Author, "author", "", "author of the imported version")
	fs.StringVar(&cfg.Notes, "notes", "", "notes for the imported version")
	fs.BoolVar(&cfg.Submit, "submit", false, "submit the imported draft for review")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyrsync %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("LYRSYNC"),
		},
		ShortHelp: fmt.Sprintf("lyrsync %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return importlrc.Run(ctx, cfg)
		},
	}
}

func newSyncCommand() *ffcli.Command {
	cmd := "sync"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &lyrsync.Config{}
	fs.StringVar(&cfg.AssemblyAIKey, "assemblyai-key", "", "assemblyai api key")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 3*time.Second, "transcript poll interval")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", 5*time.Minute, "transcript poll timeout")
	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")

	var audio, lyrics, output string
	fs.StringVar(&audio, "audio", "", "audio url to transcribe")
	fs.StringVar(&lyrics, "lyrics", "", "plain text lyrics file")
	fs.StringVar(&output, "output", "", "lrc output file (stdout if empty)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("lyrsync %s [flags]", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix("LYRSYNC"),
		},
		ShortHelp: fmt.Sprintf("lyrsync %s command", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			if audio == "" || lyrics == "" {
				return fmt.Errorf("audio and lyrics are required")
			}
			return lyrsync.Sync(ctx, cfg, audio, lyrics, output)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}

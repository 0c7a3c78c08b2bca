package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/jswans33/james-shell-sub001/core"
	"github.com/jswans33/james-shell-sub001/core/config"
	"github.com/jswans33/james-shell-sub001/core/expand"
	"github.com/jswans33/james-shell-sub001/core/jobs"
	"github.com/jswans33/james-shell-sub001/core/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgPath     string
	command     string
	noRC        bool
	debug       bool
	interactive bool

	exitCode int
)

func loadConfig() (*config.Configuration, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultDir()
	}
	configuration, err := config.Load(path)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jsh [script [args...]]",
	Short: "An interactive command shell",
	Long: `jsh reads commands from a terminal, a script file or -c and runs them
as pipelines of processes under job control.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		exitCode, err = runShell(cmd, cfg, args)
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config directory (default is $HOME/.config/jsh)")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run the given commands and exit")
	rootCmd.Flags().BoolVar(&noRC, "norc", false, "don't read the rc file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log diagnostics to stderr")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "force an interactive shell")

	// Flags after the script name belong to the script.
	rootCmd.Flags().SetInterspersed(false)
}

// runShell sets up a shell from cfg and runs it to completion.
func runShell(cmd *cobra.Command, cfg *config.Configuration, args []string) (int, error) {
	debugLog := log.New(io.Discard, "", 0)
	if debug {
		debugLog = log.New(cmd.ErrOrStderr(), "[jsh] ", 0)
	}

	events, err := openEvents(cfg)
	if err != nil {
		return 1, err
	}
	if events != nil {
		defer events.Close()
	}

	glob, err := expand.ParseGlobPolicy(cfg.GlobPolicy)
	if err != nil {
		return 1, err
	}

	isInteractive := interactive || (command == "" && len(args) == 0 && term.IsTerminal(int(os.Stdin.Fd())))
	jobControl := cfg.JobControl != "off"

	var terminal jobs.Terminal = jobs.NoTerminal{}
	if jobControl && (isInteractive || cfg.JobControl == "on") {
		terminal = jobs.ClaimTerminal(os.Stdin)
	}
	debugLog.Printf("interactive: %v, job control: %v, terminal: %v", isInteractive, jobControl, terminal.Enabled())

	name := "jsh"
	var positional []string
	if len(args) > 0 {
		name, positional = args[0], args[1:]
	}

	router := jobs.DefaultRouter()
	sh, err := core.New(core.Config{
		Name:   name,
		Args:   positional,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Env:    os.Environ(),
		Path:   cfg.Path,
		Options: core.Options{
			Errexit:  cfg.Options.Errexit,
			Xtrace:   cfg.Options.Xtrace,
			Nounset:  cfg.Options.Nounset,
			Pipefail: cfg.Options.Pipefail,
			Noglob:   cfg.Options.Noglob,
			Glob:     glob,
		},
		Interactive: isInteractive,
		JobControl:  jobControl,
		Terminal:    terminal,
		Router:      router,
		Events:      events.session(),
		Debug:       debugLog,
	})
	if err != nil {
		return 1, err
	}

	router.OnError(func(err error) {
		debugLog.Printf("router: %v", err)
	})
	if terminal.Enabled() {
		// The kernel signals the foreground job directly; the shell only
		// needs to survive the keys it shares a terminal with.
		router.Intercept(syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTSTP, syscall.SIGTERM)
	} else {
		router.Intercept(syscall.SIGINT, syscall.SIGTERM)
		router.ForwardTo(sh.Jobs().Foreground)
	}

	if cfg.Prompt != "" {
		if _, ok := sh.Env().LookupEnv(core.EnvPrompt); !ok {
			_ = sh.Env().Setenv(core.EnvPrompt, cfg.Prompt)
		}
	}

	ctx := context.Background()
	if isInteractive && !noRC {
		runRC(sh, cfg, debugLog)
	}

	switch {
	case command != "":
		return sh.RunScript(ctx, strings.NewReader(command)), nil
	case len(args) > 0:
		status, err := sh.RunFile(args[0])
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "jsh: %s: %v\n", args[0], err)
			return core.StatusNotFound, nil
		}
		return status, nil
	case isInteractive:
		return repl(ctx, sh, cfg, debugLog)
	default:
		return sh.RunScript(ctx, os.Stdin), nil
	}
}

// runRC sources the rc file if it exists.
func runRC(sh *core.Shell, cfg *config.Configuration, debugLog *log.Logger) {
	path := cfg.RCPath()
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		debugLog.Printf("no rc file: %v", err)
		return
	}
	status, err := sh.RunFile(path)
	debugLog.Printf("ran %s: status %d, err %v", path, status, err)
}

// eventLog is the open structured event log, nil when disabled.
type eventLog struct {
	w      io.WriteCloser
	logger *logger.Logger
}

func openEvents(cfg *config.Configuration) (*eventLog, error) {
	w, err := cfg.OpenEventLog()
	if err != nil || w == nil {
		return nil, err
	}
	return &eventLog{w: w, logger: logger.NewJsonLinesLogRecorder(w)}, nil
}

func (e *eventLog) session() *logger.SessionLogger {
	if e == nil {
		return nil
	}
	return e.logger.NewSession()
}

func (e *eventLog) Close() error {
	return e.w.Close()
}

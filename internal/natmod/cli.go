package natmod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// Streams carries the operator's terminal. Terminal reports whether In is
// attached to a human.
type Streams struct {
	In       io.Reader
	Out      io.Writer
	Terminal bool
}

type cliOptions struct {
	configPath     string
	envPath        string
	debug          bool
	nonInteractive bool
	assumeYes      bool
	publish        bool
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	streams  Streams
	opts     cliOptions
	cfg      *Config
	settings *Settings
	prompter *Prompter
}

func (a *app) setup() error {
	loadDotEnv(a.opts.envPath)

	cfg, err := loadConfig(a.opts.configPath)
	if err != nil {
		return err
	}
	s, err := initSettings(cfg)
	if err != nil {
		return err
	}
	if a.opts.debug {
		s.Debug = true
	}
	if a.opts.nonInteractive {
		s.NonInteractive = true
	}
	if a.opts.assumeYes {
		s.AssumeYes = true
	}
	initLogger(s.Debug)

	interactive := !s.NonInteractive && a.streams.Terminal
	p := NewPrompter(a.streams.In, a.streams.Out, interactive)
	p.AssumeYes = s.AssumeYes
	p.Timeout = s.PromptTimeout

	a.cfg, a.settings, a.prompter = cfg, s, p
	debugf("settings: root=%s build=%s interactive=%v", s.ProjectRoot, s.BuildDir, interactive)
	return nil
}

func (a *app) pipeline(ctx context.Context, publish bool) (*Pipeline, error) {
	p := newPipeline(a.settings, a.prompter)
	p.Output = a.streams.Out
	p.Publish = publish
	if publish {
		pub, err := NewR2Client(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		p.Publisher = pub
	}
	return p, nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "natmod",
		Short:         "Build a MicroPython native module from a DeepCraft model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
	}
	root.SetIn(a.streams.In)
	root.SetOut(a.streams.Out)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.configPath, "config", "c", ConfigFile, "KEY=value config file")
	pf.StringVar(&a.opts.envPath, "env-file", EnvFile, "dotenv file exported before the config is read")
	pf.BoolVarP(&a.opts.debug, "debug", "d", false, "enable debug logging")
	pf.BoolVar(&a.opts.nonInteractive, "non-interactive", false, "never prompt; use defaults")
	pf.BoolVarP(&a.opts.assumeYes, "yes", "y", false, "answer yes to confirmations when not prompting")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage: fetch, toolchain, stage, patch, build, cleanup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd.Context(), a.opts.publish)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context())
		},
	}
	runCmd.Flags().BoolVar(&a.opts.publish, "publish", false, "upload the artifact and build record to R2")
	root.RunE = runCmd.RunE
	root.Flags().AddFlagSet(runCmd.Flags())

	root.AddCommand(
		runCmd,
		&cobra.Command{
			Use:   "fetch",
			Short: "Sparse-clone the MicroPython tree",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				return p.Fetch(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "toolchain",
			Short: "Download the cross compiler if it is missing",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				path, err := p.Toolchain(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "stage [dir]",
			Short: "Copy model.c and model.h into the build directory",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				var src string
				if len(args) == 1 {
					src = args[0]
				}
				_, err = p.Stage(src)
				return err
			},
		},
		&cobra.Command{
			Use:   "patch [file]",
			Short: "Strip static from data declarations in model.c",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				var file string
				if len(args) == 1 {
					file = args[0]
				}
				_, err = p.Patch(file)
				return err
			},
		},
		&cobra.Command{
			Use:   "build",
			Short: "Run make and move the module next to the project",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				_, err = p.BuildOnly(cmd.Context())
				return err
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete the cloned tree after confirmation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				return p.Cleanup()
			},
		},
		&cobra.Command{
			Use:   "log",
			Short: "Show the output of the last build",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), false)
				if err != nil {
					return err
				}
				lines, err := readBuildLog(p.logPath())
				if err != nil {
					return fmt.Errorf("no build log: %w", err)
				}
				return ShowBuildLog(cmd.OutOrStdout(), "build log", lines)
			},
		},
		&cobra.Command{
			Use:   "publish [artifact]",
			Short: "Upload an artifact and its build record to R2",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.pipeline(cmd.Context(), true)
				if err != nil {
					return err
				}
				artifact := a.settings.ArtifactDest
				if len(args) == 1 {
					artifact = args[0]
				}
				_, err = p.PublishArtifact(cmd.Context(), artifact)
				return err
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				cPrintf(colInfo, "natmod %s (%s) built %s\n", version, arch, buildDate)
			},
		},
	)
	return root
}

// Execute runs the command line in args and returns the process exit code.
func Execute(ctx context.Context, args []string, streams Streams) int {
	a := &app{streams: streams}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	syncLogger()
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		colArrow.Print("-> ")
		color.Danger.Println("Cancelled.")
		return 1
	}
	colArrow.Print("-> ")
	colError.Printf("Error: %v\n", err)
	return 1
}

// Main is the CLI entrypoint for cmd/natmod.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// First signal cancels the context, which kills any running git or make
	// process group. A second one exits immediately.
	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
			cancel()

			select {
			case <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Println("Second interrupt received. Forcing immediate exit.")
				os.Exit(130)
			case <-time.After(10 * time.Second):
				colArrow.Print("\n-> ")
				color.Danger.Println("Graceful shutdown timeout. Exiting.")
				os.Exit(130)
			}
		case <-ctx.Done():
		}
	}()

	code := Execute(ctx, os.Args[1:], Streams{
		In:       os.Stdin,
		Out:      os.Stdout,
		Terminal: stdinIsTerminal(),
	})
	signal.Stop(sigs)
	cancel()
	os.Exit(code)
}

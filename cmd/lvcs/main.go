// cmd/lvcs/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lvcs/internal/change"
	"lvcs/internal/diff"
	"lvcs/internal/entry"
	"lvcs/internal/history"
	"lvcs/internal/logging"
	"lvcs/internal/paths"
	"lvcs/internal/repository"
	"lvcs/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel   string
	configPath string
	logger     = logging.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "lvcs",
	Short: "lvcs keeps a local history of a directory",
	Long: `lvcs records every creation, edit, rename, move and deletion in a
directory as reversible change sets, and can show, diff, restore or revert
the directory at any recorded revision.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.NewCLILogger(logLevel)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .lvcs/config.yaml)")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Start tracking the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			if err := repository.Initialize(dir); err != nil {
				return fmt.Errorf("initializing workspace: %w", err)
			}

			fmt.Println("Initialized empty lvcs history in", dir)
			return nil
		},
	}

	var label string
	var recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Record the current state of the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(repo *repository.Repository) error {
				rev, changed, err := repo.Workspace.Record(cmd.Context(), repo.History, label)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Printf("No changes detected (workspace matches revision %d)\n", repo.History.Revision())
					return nil
				}
				fmt.Printf("Recorded revision %s (%d changes)\n",
					color.New(color.FgYellow).Sprint(rev.Revision), rev.Changes)
				return nil
			})
		},
	}
	recordCmd.Flags().StringVarP(&label, "message", "m", "", "label for the change set")

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "List recorded revisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(repo *repository.Repository) error {
				revs, err := repo.History.List()
				if err != nil {
					return err
				}
				if len(revs) == 0 {
					fmt.Println("No revisions recorded yet")
					return nil
				}
				yellow := color.New(color.FgYellow).SprintFunc()
				faint := color.New(color.Faint).SprintFunc()
				for i := len(revs) - 1; i >= 0; i-- {
					printRevision(revs[i], yellow, faint)
				}
				return nil
			})
		},
	}

	var showCmd = &cobra.Command{
		Use:   "show <rev> [path]",
		Short: "Print the tree, or a file, as it was at a revision",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := parseRevision(args[0])
			if err != nil {
				return err
			}
			var p paths.Path
			if len(args) == 2 {
				p = paths.Parse(args[1])
			}

			return withRepo(cmd, func(repo *repository.Repository) error {
				root, err := repo.History.StateAt(cmd.Context(), rev)
				if err != nil {
					return err
				}
				e, err := root.Entry(p)
				if err != nil {
					return err
				}
				if f, ok := e.(*entry.File); ok {
					fmt.Print(f.Content())
					return nil
				}
				fmt.Print(entry.String(e))
				return nil
			})
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history <path>",
		Short: "List the changes that affected a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(repo *repository.Repository) error {
				changes, err := repo.History.HistoryOf(cmd.Context(), paths.Parse(args[0]))
				if err != nil {
					return err
				}
				yellow := color.New(color.FgYellow).SprintFunc()
				for _, c := range changes {
					label := ""
					if c.Label != "" {
						label = " (" + c.Label + ")"
					}
					fmt.Printf("%s %s%s\n", yellow(fmt.Sprintf("r%-4d", c.Revision)), colorKind(c.Change.Kind()), label)
					fmt.Printf("      %s\n", c.Change)
				}
				return nil
			})
		},
	}

	var contextLines int
	var diffCmd = &cobra.Command{
		Use:   "diff <path> <revA> <revB>",
		Short: "Show line changes to a file between two revisions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := paths.Parse(args[0])
			from, err := parseRevision(args[1])
			if err != nil {
				return err
			}
			to, err := parseRevision(args[2])
			if err != nil {
				return err
			}

			return withRepo(cmd, func(repo *repository.Repository) error {
				oldContent, err := contentAt(cmd.Context(), repo.History, from, p)
				if err != nil {
					return err
				}
				newContent, err := contentAt(cmd.Context(), repo.History, to, p)
				if err != nil {
					return err
				}
				result := diff.NewEngine(contextLines).DiffStrings(oldContent, newContent)
				if result.Stats.Changes == 0 && !result.Binary {
					fmt.Println("No differences")
					return nil
				}
				color.New(color.Bold).Printf("--- %s@%d\n+++ %s@%d\n", p, from, p, to)
				printColoredDiff(result.Format())
				return nil
			})
		},
	}
	diffCmd.Flags().IntVarP(&contextLines, "context", "U", 3, "lines of context")

	var keepFiles bool
	var revertCmd = &cobra.Command{
		Use:   "revert <rev>",
		Short: "Undo every revision after rev and drop it from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := parseRevision(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd, func(repo *repository.Repository) error {
				from := repo.History.Revision()
				if err := repo.History.RevertTo(cmd.Context(), rev); err != nil {
					return err
				}
				if !keepFiles {
					if err := repo.Workspace.Materialize(repo.History.Head()); err != nil {
						return fmt.Errorf("updating workspace: %w", err)
					}
				}
				fmt.Printf("Reverted from revision %d to %d\n", from, rev)
				return nil
			})
		},
	}
	revertCmd.Flags().BoolVar(&keepFiles, "keep-files", false, "leave the workspace files untouched")

	var target string
	var restoreCmd = &cobra.Command{
		Use:   "restore <rev> --to <dir>",
		Short: "Make a directory hold exactly the tree at a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := parseRevision(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd, func(repo *repository.Repository) error {
				root, err := repo.History.StateAt(cmd.Context(), rev)
				if err != nil {
					return err
				}
				out := workspace.NewLocalWorkspace(target, repo.Config.Workspace.Ignore, logger.Logger)
				if err := out.Materialize(root); err != nil {
					return err
				}
				fmt.Printf("Restored revision %d (%d entries) into %s\n", rev, root.Len(), target)
				return nil
			})
		},
	}
	restoreCmd.Flags().StringVar(&target, "to", "", "directory to write into")
	restoreCmd.MarkFlagRequired("to")

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Record automatically whenever the workspace changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withRepo(cmd, func(repo *repository.Repository) error {
				debounce, err := repo.Config.DebounceDuration()
				if err != nil {
					return err
				}
				w, err := workspace.NewWatcher(repo.Workspace, debounce, func(ctx context.Context) error {
					rev, changed, err := repo.Workspace.Record(ctx, repo.History, "auto "+time.Now().Format(time.RFC3339))
					if err != nil || !changed {
						return err
					}
					fmt.Printf("Recorded revision %d (%d changes)\n", rev.Revision, rev.Changes)
					return nil
				})
				if err != nil {
					return err
				}
				defer w.Close()

				fmt.Println("Watching", repo.Root, "(Ctrl-C to stop)")
				if err := w.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		},
	}

	var exportCmd = &cobra.Command{
		Use:   "export <file>",
		Short: "Write the whole history to an archive file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(repo *repository.Repository) error {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := repo.History.Export(cmd.Context(), f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Printf("Exported %d revisions to %s\n", repo.History.Revision(), args[0])
				return nil
			})
		},
	}

	var importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Load an archive into an empty history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd, func(repo *repository.Repository) error {
				n, err := repo.History.Import(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d revisions\n", n)
				return nil
			})
		},
	}

	rootCmd.AddCommand(initCmd, recordCmd, logCmd, showCmd, historyCmd, diffCmd,
		revertCmd, restoreCmd, watchCmd, exportCmd, importCmd)
}

// withRepo opens the workspace around the current directory for the
// duration of fn.
func withRepo(cmd *cobra.Command, fn func(*repository.Repository) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	repo, err := repository.Open(cmd.Context(), cwd, repository.Options{
		ConfigPath: configPath,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("closing repository", zap.Error(err))
		}
	}()
	return fn(repo)
}

func parseRevision(s string) (int, error) {
	rev, err := strconv.Atoi(strings.TrimPrefix(s, "r"))
	if err != nil || rev < 0 {
		return 0, fmt.Errorf("invalid revision %q", s)
	}
	return rev, nil
}

// contentAt is the file content at rev, or empty if the file did not exist.
func contentAt(ctx context.Context, h *history.History, rev int, p paths.Path) (string, error) {
	root, err := h.StateAt(ctx, rev)
	if err != nil {
		return "", err
	}
	e, err := root.Entry(p)
	if err != nil {
		return "", nil
	}
	return entry.Content(e)
}

func printRevision(rev history.Revision, yellow, faint func(a ...interface{}) string) {
	label := rev.Label
	if label == "" {
		label = "(no label)"
	}
	fmt.Printf("%s %s\n", yellow(fmt.Sprintf("r%d", rev.Revision)), label)
	fmt.Printf("    %s  %d changes  %s\n",
		faint(rev.RecordedAt.Local().Format("2006-01-02 15:04:05")),
		rev.Changes,
		faint(rev.ID))
}

func colorKind(k change.Kind) string {
	switch k {
	case change.KindCreateFile, change.KindCreateDirectory:
		return color.GreenString(k.String())
	case change.KindDelete:
		return color.RedString(k.String())
	default:
		return color.CyanString(k.String())
	}
}

func printColoredDiff(diff string) {
	// Create color objects
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

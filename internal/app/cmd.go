package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/insighthub/internal/client"
	"github.com/hitoshi/insighthub/internal/config"
	"github.com/hitoshi/insighthub/internal/importer"
	"github.com/hitoshi/insighthub/internal/metrics"
	"github.com/hitoshi/insighthub/internal/worker/cleanup"
)

// Execute はコマンドライン引数を解析して対応するサブコマンドを実行し、終了コードを返す。
// argsにはos.Args[1:]を渡す。エラーはstderrにそのまま出力する。
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// NewRootCommand はinsighthubのルートコマンドを生成する。
// サーバー系コマンドのログはstdoutに、CLI系コマンドのログはstderrに出力する。
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "insighthub",
		Short:         "Paginated news feed server and terminal reader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newServeCommand(stdout),
		newMigrateCommand(stdout),
		newImportCommand(stdout, stderr),
		newPruneCommand(stdout, stderr),
		newReadCommand(),
		newAccountCommand(metrics.OpRegister, "Create an account on the news server", stdout, stderr),
		newAccountCommand(metrics.OpLogin, "Check credentials against the news server", stdout, stderr),
		newHealthcheckCommand(),
	)

	return root
}

func newServeCommand(logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the news API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func newMigrateCommand(logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg)
		},
	}
}

func newImportCommand(stdout, logOut io.Writer) *cobra.Command {
	var (
		maxAge      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "import <feed-url-or-file>...",
		Short: "Import RSS/Atom feeds into the article store",
		Long: "Import RSS/Atom feeds into the article store. Each source may be a feed URL,\n" +
			"a web page that advertises a feed, or a local feed file.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseMaxAge(maxAge)
			if err != nil {
				return fmt.Errorf("invalid --max-age value: %w", err)
			}

			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runImport(cmd.Context(), cfg, stdout, importOptions{
				Sources:     args,
				MaxAge:      age,
				Concurrency: concurrency,
			})
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", importer.DefaultMaxAge.String(), "skip articles older than this (e.g. 24h, 7d; 0 disables)")
	cmd.Flags().IntVar(&concurrency, "concurrency", importer.DefaultConcurrency, "number of sources imported in parallel")

	return cmd
}

func newPruneCommand(stdout, logOut io.Writer) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete articles published before the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive: %d", days)
			}

			cfg, err := Init(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runPrune(cmd.Context(), cfg, stdout, days)
		},
	}

	cmd.Flags().IntVar(&days, "days", cleanup.DefaultRetentionDays, "retention window in days")

	return cmd
}

func newReadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Browse the news feed in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 全画面表示を崩さないよう、ログは出力しない
			cfg, err := InitClient(io.Discard)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runRead(cmd.Context(), cfg)
		},
	}
}

func newAccountCommand(op, short string, stdout, logOut io.Writer) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := InitClient(logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}

			if password == "" {
				password, err = readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			c := client.New(cfg.APIBaseURL, nil, cfg.ClientTimeout)
			return runAccount(cmd.Context(), c, stdout, op, username, password)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "healthcheck",
		Short:  "Probe the local server's /health endpoint",
		Args:   cobra.NoArgs,
		Hidden: true,
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(config.LoadClient().ServerPort)
		},
	}
}

// readPassword はrから1行読み取り、末尾の改行を除いて返す。
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseMaxAge は"7d"のような日数指定を含む期間文字列を解析する。
// "0"は鮮度による絞り込みを行わないことを表す。
func parseMaxAge(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			if days < 0 {
				return 0, fmt.Errorf("negative duration: %s", s)
			}
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}
	return d, nil
}

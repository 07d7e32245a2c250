package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/me/visium/internal/api"
	"github.com/me/visium/internal/config"
	"github.com/me/visium/internal/logging"
	"github.com/me/visium/internal/metrics"
	"github.com/me/visium/internal/session"
	"github.com/me/visium/internal/store"
)

// viewAnnotation names the view a command stands for. Commands on protected
// views refuse to run without a session.
const viewAnnotation = "view"

var errLoginRequired = errors.New("not logged in: run 'visium login' first")

var (
	flagConfig    string
	flagServer    string
	flagState     string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg       config.ClientConfig
	logger    *slog.Logger
	notifier  logging.Notifier
	state     *store.SQLiteStore
	client    *api.Client
	sessions  *session.Manager
	router    *session.Router
	registry  *prometheus.Registry
	collector *metrics.Collector
)

// NewRootCmd creates the root cobra command for the visium CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "visium",
		Short: "Visium image sharing client",
		Long:  "visium logs in to a Visium server and browses, uploads, generates and discusses images.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd); err != nil {
				return err
			}
			if view := cmd.Annotations[viewAnnotation]; session.IsProtected(view, cfg.ProtectedPaths) {
				return requireSession()
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeState()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath(), "Config file")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "Visium server URL (or VISIUM_SERVER env)")
	root.PersistentFlags().StringVar(&flagState, "state", "", "Session state file (or VISIUM_STATE env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newTokenCmd(),
		newGalleryCmd(),
		newImageCmd(),
		newUploadCmd(),
		newGenerateCmd(),
		newEditCmd(),
		newLikeCmd(),
		newUnlikeCmd(),
		newCommentsCmd(),
		newCommentCmd(),
		newSearchCmd(),
		newUserCmd(),
		newWatchCmd(),
	)

	return root
}

// Execute runs root and closes the state store afterwards. Cobra skips the
// post-run hook when a command fails, so the store is closed here as well.
func Execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := closeState(); err == nil {
		err = cerr
	}
	return err
}

// setup loads configuration and wires the state store, API client and
// session manager, then restores the stored session.
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(flagConfig, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if flagServer != "" {
		cfg.Server = flagServer
	}
	if flagState != "" {
		cfg.StatePath = flagState
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagDebug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !logging.ValidFormat(cfg.LogFormat) {
		return fmt.Errorf("invalid log format %q (valid: text, json)", cfg.LogFormat)
	}

	logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	notifier = logging.NewWriterNotifier(cmd.ErrOrStderr(), logger)

	state, err = store.NewSQLiteStore(cfg.StatePath, logger, store.WithPollInterval(cfg.PollInterval))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	if err := state.Migrate(cmd.Context()); err != nil {
		state.Close()
		return fmt.Errorf("migrate state: %w", err)
	}

	registry = prometheus.NewRegistry()
	collector = metrics.NewCollector(registry)

	client = api.NewClient(cfg.BaseURL(), logger,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithNotifier(notifier),
		api.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		api.WithMetrics(collector),
	)

	view := cmd.Annotations[viewAnnotation]
	if view == "" {
		view = session.PathHome
	}
	router = session.NewRouter(view)

	sessions = session.NewManager(state, client,
		session.WithNavigator(router),
		session.WithNotifier(notifier),
		session.WithLogger(logger),
		session.WithTTL(cfg.SessionTTL),
		session.WithProtectedPaths(cfg.ProtectedPaths),
	)
	client.SetTokenSource(sessions)

	st := sessions.Restore(cmd.Context())
	logger.Debug("session restored", "state", st, "server", cfg.BaseURL())
	return nil
}

// closeState releases the state store opened by setup.
func closeState() error {
	if state == nil {
		return nil
	}
	err := state.Close()
	state = nil
	return err
}

func requireSession() error {
	if !sessions.Authenticated() {
		return errLoginRequired
	}
	return nil
}

// authError turns a missing token into the login hint.
func authError(err error) error {
	if errors.Is(err, api.ErrAuthRequired) {
		return errLoginRequired
	}
	return err
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid image id %q", s)
	}
	return id, nil
}

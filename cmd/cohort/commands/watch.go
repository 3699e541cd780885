package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dyluth/cohort/internal/academy"
	"github.com/dyluth/cohort/internal/cache"
	"github.com/dyluth/cohort/internal/client"
	"github.com/dyluth/cohort/internal/config"
	dockerpkg "github.com/dyluth/cohort/internal/docker"
	"github.com/dyluth/cohort/internal/eventbus"
	"github.com/dyluth/cohort/internal/instance"
	"github.com/dyluth/cohort/internal/printer"
	"github.com/dyluth/cohort/internal/syncer"
	"github.com/dyluth/cohort/pkg/progress"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	watchUser     string
	watchBatch    string
	watchRole     string
	watchRedis    string
	watchInstance string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a dashboard or batch view on screen as progress changes",
	Long: `Keep a learner's dashboard (--user) or a batch's progress (--batch) on
screen, redrawing whenever it changes.

Changes made by cohortd arrive over the instance's Redis when it can be
reached; the view also refreshes on a timer that depends on --role
(student: sync.student_poll_interval, mentor and admin:
sync.oversight_poll_interval).

Redis is found through --redis and --instance, then REDIS_URL and
COHORT_INSTANCE_NAME, then the local Docker instances started by 'cohort up'.
Without it the view only polls.

Examples:
  cohort watch --user ana
  cohort watch --batch <batch-id> --role mentor
  cohort watch --batch <batch-id> --redis redis://localhost:6379 --instance spring-2024`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchUser, "user", "u", "", "Watch this learner's dashboard")
	watchCmd.Flags().StringVarP(&watchBatch, "batch", "b", "", "Watch this batch's progress")
	watchCmd.Flags().StringVar(&watchRole, "role", "", "student, mentor or admin (default student for --user, mentor for --batch)")
	watchCmd.Flags().StringVar(&watchRedis, "redis", "", "Redis URL of the cohort instance")
	watchCmd.Flags().StringVarP(&watchInstance, "instance", "n", "", "Cohort instance name")
	watchCmd.MarkFlagsOneRequired("user", "batch")
	watchCmd.MarkFlagsMutuallyExclusive("user", "batch")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	role := syncer.Role(watchRole)
	if role == "" {
		role = syncer.RoleStudent
		if watchBatch != "" {
			role = syncer.RoleMentor
		}
	}
	if err := role.Validate(); err != nil {
		return printer.Error("invalid role", err.Error(), []string{"Use --role student, mentor or admin"})
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}

	syncCfg := syncConfig(cfg)
	logger := log.Default().WithPrefix("watch")
	cm := cache.New()
	defer cm.Close()
	bus := eventbus.New()
	defer bus.Close()

	if relayDone, closeStore, err := startRelay(ctx, bus); err != nil {
		printer.Warning("Live updates unavailable: %v\n", err)
		printer.Info("  Polling every %s instead\n\n", pollFor(syncCfg, role))
	} else {
		defer func() {
			stop()
			<-relayDone
			closeStore()
		}()
	}

	batchID := watchBatch
	if batchID != "" {
		if batchID, err = resolveBatch(ctx, c, batchID); err != nil {
			return err
		}
	}

	adapter := syncer.NewAdapter(cm, bus, syncCfg)
	view, err := adapter.Mount(ctx, watchSpec(c, role, batchID))
	if err != nil {
		return fmt.Errorf("failed to mount view: %w", err)
	}
	defer view.Unmount()

	events := make(chan focusEvent, 1)
	watchTerminal(ctx, events)
	go readRefreshKeys(ctx, cmd.InOrStdin(), events)
	printer.Info("Press Enter to refresh, Ctrl-C to stop\n")

	followTerminal(ctx, view, events, suspendSelf, logger)
	logger.Debug("watch stopped")
	return nil
}

func watchSpec(c *client.Client, role syncer.Role, batch string) syncer.ViewSpec {
	var mu sync.Mutex
	render := func(draw func() error) {
		mu.Lock()
		defer mu.Unlock()
		printer.Info("\n%s\n", time.Now().Format(time.DateTime))
		if err := draw(); err != nil {
			printer.Warning("Failed to render: %v\n", err)
		}
	}
	onError := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		printer.Warning("Refresh failed, showing stale data: %v\n", err)
	}

	if watchUser != "" {
		user := watchUser
		return syncer.ViewSpec{
			Key:  cache.KeyDashboard,
			Role: role,
			Fetch: func(ctx context.Context) (any, error) {
				return c.Dashboard(ctx, user)
			},
			Events: []eventbus.Type{eventbus.TaskCompleted, eventbus.ProgressUpdated, eventbus.TaskCreated, eventbus.BatchEnrolled, eventbus.BatchCreated},
			OnData: func(value any) {
				if d, ok := value.(*academy.Dashboard); ok {
					render(func() error { return printDashboard(d) })
				}
			},
			OnError: onError,
		}
	}

	return syncer.ViewSpec{
		Key:  cache.KeyBatchProgress,
		Role: role,
		Fetch: func(ctx context.Context) (any, error) {
			return c.BatchProgress(ctx, batch)
		},
		Events: []eventbus.Type{eventbus.TaskCompleted, eventbus.ProgressUpdated, eventbus.TaskCreated, eventbus.BatchEnrolled},
		OnData: func(value any) {
			if list, ok := value.([]*progress.UserBatchProgress); ok {
				render(func() error { return printBatchProgress(list) })
			}
		},
		OnError: onError,
	}
}

func syncConfig(cfg *config.CohortConfig) syncer.Config {
	return syncer.Config{
		StudentPollInterval:   cfg.Sync.StudentPollInterval,
		OversightPollInterval: cfg.Sync.OversightPollInterval,
		Jitter:                cfg.Sync.Jitter,
		RefreshDelay:          cfg.Sync.RefreshDelay,
	}
}

func pollFor(cfg syncer.Config, role syncer.Role) time.Duration {
	if role == syncer.RoleStudent {
		return cfg.StudentPollInterval
	}
	return cfg.OversightPollInterval
}

// startRelay connects to the instance's Redis and relays server events into bus
// until ctx is cancelled.
func startRelay(ctx context.Context, bus *eventbus.Bus) (<-chan struct{}, func(), error) {
	redisURL, name, err := resolveRedis(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid Redis URL %q: %w", redisURL, err)
	}
	store, err := progress.NewClient(opts, name)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("redis not accessible at %s: %w", redisURL, err)
	}

	done, err := eventbus.NewRelay(store, bus, "", nil).Start(ctx)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	return done, func() { store.Close() }, nil
}

func resolveRedis(ctx context.Context) (string, string, error) {
	redisURL := watchRedis
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	name := watchInstance
	if name == "" {
		name = os.Getenv("COHORT_INSTANCE_NAME")
	}

	if redisURL != "" {
		if name == "" {
			return "", "", errors.New("--instance or COHORT_INSTANCE_NAME is required with a Redis URL")
		}
		return redisURL, name, instance.ValidateName(name)
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("no Redis URL given and no local instance to use: %w", err)
	}
	defer cli.Close()

	if name == "" {
		if name, err = instance.Infer(ctx, cli); err != nil {
			return "", "", fmt.Errorf("cannot pick a local instance: %w", err)
		}
	}
	port, err := instance.RedisPort(ctx, cli, name)
	if err != nil {
		return "", "", err
	}
	return instance.RedisURL(port), name, nil
}

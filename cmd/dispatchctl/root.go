package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"service-dispatch/internal/common/config"
	"service-dispatch/internal/common/database"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/dispatch/coordinator"
	"service-dispatch/internal/dispatch/directory"
	"service-dispatch/internal/dispatch/scorer"
	"service-dispatch/internal/dispatch/timer"
	"service-dispatch/internal/models"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/search"
	"service-dispatch/internal/store/postgres"
	"service-dispatch/internal/store/redisstore"
)

// inspector is the read side of the coordinator.
type inspector interface {
	Status(ctx context.Context, requestID string) (*models.ServiceRequest, error)
	History(ctx context.Context, requestID string) (*models.RequestHistory, error)
	Candidates(ctx context.Context, req models.ServiceRequest) ([]models.MatchCandidate, error)
}

type providerAdmin interface {
	Register(ctx context.Context, p *models.Provider) error
	SetAvailability(ctx context.Context, providerID string, available bool) error
	Deactivate(ctx context.Context, providerID string) error
	Get(ctx context.Context, providerID string) (*models.Provider, error)
}

type eventLister interface {
	Events(ctx context.Context, requestID string) ([]models.DispatchEvent, error)
}

type session struct {
	requests  inspector
	providers providerAdmin
	// events is nil when no history index is configured.
	events eventLister
	close  func()
}

type opener func(cmd *cobra.Command) (*session, error)

type rootOptions struct {
	configPath string
	output     string
}

func newRootCmd(open opener) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Inspect service requests and manage providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (default: configs/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	var withSession sessionRunner = func(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			if s.close != nil {
				defer s.close()
			}
			return run(cmd, s, args)
		}
	}

	root.AddCommand(
		newStatusCmd(opts, withSession),
		newHistoryCmd(opts, withSession),
		newCandidatesCmd(opts, withSession),
		newProviderCmd(opts, withSession),
		newRegistryCmd(),
	)
	return root
}

type sessionRunner func(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error

// openSession connects to the configured stores. Nothing is dispatched and no
// notification is sent from the CLI.
func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Dispatch.Store != config.StorePostgres {
		return nil, fmt.Errorf("dispatchctl needs the postgres store, configured store is %q", cfg.Dispatch.Store)
	}

	log := logger.NewStructured("warn", "console")
	ctx := cmd.Context()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		pg.Close()
		return nil, err
	}

	st := postgres.New(pg.DB)
	dir := directory.New(st, directory.NewZoneMatcher(cfg.Dispatch.Zones), log)
	coord := coordinator.New(coordinator.ConfigFromDispatch(cfg.Dispatch), coordinator.Deps{
		Requests:  st,
		Providers: st,
		Latencies: redisstore.NewLatencyStore(rdb.Client),
		Finder:    dir,
		Scorer:    scorer.New(scorer.WeightsFromConfig(cfg.Dispatch.Weights)),
		Timers:    timer.NewLocalScheduler(log),
		Gateway:   notify.NewLogGateway(log),
	}, log)

	s := &session{
		requests:  coord,
		providers: dir,
		close: func() {
			rdb.Close()
			pg.Close()
		},
	}
	if cfg.Database.Elasticsearch.GetURL() != "" {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err == nil {
			s.events = search.NewHistoryIndexer(es.Client, cfg.Database.Elasticsearch.Index, log)
		}
	}
	return s, nil
}

func (o *rootOptions) jsonOutput() bool {
	return o.output == "json"
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package serve boots the whole service: graph and object adapters,
// auth, the OCR consumer, and the HTTP API.
package serve

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/uleam-dti/dms/internal/api"
	"github.com/uleam-dti/dms/internal/audit"
	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/internal/cmd/base"
	"github.com/uleam-dti/dms/internal/config"
	"github.com/uleam-dti/dms/internal/server"
	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/identity"
	"github.com/uleam-dti/dms/pkg/ingest"
	"github.com/uleam-dti/dms/pkg/naming"
	"github.com/uleam-dti/dms/pkg/objectstore"
	"github.com/uleam-dti/dms/pkg/search"
	"github.com/uleam-dti/dms/pkg/validation"
)

type Command struct {
	*base.Command

	flagNoConsumer bool
}

func (c *Command) Synopsis() string {
	return "Run the document management service"
}

func (c *Command) Help() string {
	return `Usage: dms serve

  Runs the service: the HTTP API plus the OCR results consumer.
  All configuration comes from the environment.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ExitOnError))
	f.BoolVar(
		&c.flagNoConsumer, "no-consumer", false,
		"Serve the HTTP API only, without the OCR consumer",
	)
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := c.build(ctx, cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building server: %v", err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("dms listening on %s", cfg.ListenAddr))
	if err := srv.Run(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("server exited with error: %v", err))
		return 1
	}
	return 0
}

// build wires every component in dependency order.
func (c *Command) build(ctx context.Context, cfg *config.Config) (*server.Server, error) {
	log := c.Log

	graphClient, err := graph.New(ctx, graph.Config{
		HostURL:  cfg.ArangoURL,
		Password: cfg.ArangoPassword,
		Database: cfg.ArangoDatabase,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}
	if err := graphClient.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("graph schema: %w", err)
	}

	objects, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Secure:    cfg.MinioSecure,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("object store bucket: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.AuthRedisURL)
	if err != nil {
		return nil, fmt.Errorf("auth redis url: %w", err)
	}

	authenticator, err := auth.New(auth.Config{
		Redis:          redis.NewClient(redisOpts),
		Store:          graphClient,
		KeyPrefix:      cfg.AuthKeyPrefix,
		AzureTenantID:  cfg.AzureTenantID,
		LocalJWKSURL:   cfg.AuthJWKSURL,
		MicroserviceID: cfg.MicroserviceID,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("authenticator: %w", err)
	}

	recorder := audit.NewRecorder(audit.Config{Store: graphClient, Logger: log})

	searchSvc := search.NewService(graphClient, log)
	downloader := search.NewDownloader(graphClient, objects, recorder, log)

	// The directory is optional: without Azure credentials the resolver
	// only consults the local graph.
	var directory identity.Directory
	if cfg.AzureTenantID != "" && cfg.AzureClientID != "" && cfg.AzureSecret != "" {
		dc, err := identity.NewDirectoryClient(identity.DirectoryConfig{
			TenantID:     cfg.AzureTenantID,
			ClientID:     cfg.AzureClientID,
			ClientSecret: cfg.AzureSecret,
			Logger:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("directory client: %w", err)
		}
		directory = dc
	} else {
		log.Warn("directory credentials missing, identity resolution is graph-only")
	}
	resolver := identity.NewResolver(graphClient, directory, log)

	signer, err := validation.NewSigner(cfg.IntegritySecret)
	if err != nil {
		return nil, fmt.Errorf("integrity signer: %w", err)
	}
	validationSvc, err := validation.NewService(validation.ServiceConfig{
		Store:    graphClient,
		Objects:  objects,
		Archiver: validation.NewArchiver(objects, log),
		Ensurer:  validation.NewEntityEnsurer(graphClient, resolver, log),
		Quality:  validation.NewQualityChecker(graphClient, log),
		Signer:   signer,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("validation service: %w", err)
	}

	var consumer *ingest.Consumer
	if !c.flagNoConsumer {
		pipeline, err := ingest.NewPipeline(ingest.PipelineConfig{
			Writer:    graphClient,
			Transfer:  ingest.NewTransfer(objects, log),
			Validator: ingest.NewValidator(graphClient, resolver, log),
			Namer:     naming.New(graphClient, log),
			Bucket:    cfg.MinioBucket,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("ingest pipeline: %w", err)
		}
		consumer, err = ingest.NewConsumer(ingest.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			Pipeline:      pipeline,
			Logger:        log,
		})
		if err != nil {
			return nil, fmt.Errorf("ocr consumer: %w", err)
		}
	}

	handler := api.New(api.Config{
		Auth:      authenticator,
		Search:    searchSvc,
		Fetcher:   downloader,
		Validator: validationSvc,
		Store:     graphClient,
		Templates: objects,
		Logger:    log,
	}).Router()

	return &server.Server{
		Config:     cfg,
		Graph:      graphClient,
		Objects:    objects,
		Auth:       authenticator,
		Audit:      recorder,
		Search:     searchSvc,
		Downloader: downloader,
		Validation: validationSvc,
		Consumer:   consumer,
		Handler:    handler,
		Logger:     log,
	}, nil
}

package cli

import (
	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/server"
)

// ServeAction runs the HTTP detection service until the app context is
// canceled. Redis storage and Kafka publishing are enabled by the server
// section of the config.
func (a *actions) ServeAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String(serveFlagAddr); addr != "" {
		cfg.Server.Addr = addr
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer logger.Sync()

	if !c.Bool(flagDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	timer := profiler.NewStageTimer(0)
	engine, err := a.buildEngine(cfg, logger, timer)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, engine.Close())
		timer.Report(logger)
	}()

	opts := server.Options{
		Addr:     cfg.Server.Addr,
		Detector: engine,
		Logger:   logger,
	}

	if rc := cfg.Server.Redis; rc.Addr != "" {
		var client *redis.Client
		client, err = server.ConnectRedis(c.Context, &redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, client.Close())
		}()
		opts.Store = server.NewRedisStore(client, rc.TTL)
		logger.Info("storing results in redis", zap.String("addr", rc.Addr), zap.Duration("ttl", rc.TTL))
	}

	if kc := cfg.Server.Kafka; len(kc.Brokers) > 0 {
		var producer sarama.SyncProducer
		producer, err = server.ConnectProducer(kc.Brokers)
		if err != nil {
			return err
		}
		publisher := server.NewKafkaPublisher(producer, kc.Topic)
		defer func() {
			err = multierr.Append(err, publisher.Close())
		}()
		opts.Publisher = publisher
		logger.Info("publishing results to kafka", zap.Strings("brokers", kc.Brokers), zap.String("topic", kc.Topic))
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	return errors.Wrap(srv.Run(c.Context), "detection service")
}

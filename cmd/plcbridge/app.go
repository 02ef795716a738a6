package main

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	plcbridge "github.com/TimeWtr/plc_bridge"
	"github.com/TimeWtr/plc_bridge/config"
	_const "github.com/TimeWtr/plc_bridge/const"
	"github.com/TimeWtr/plc_bridge/repository"
	"github.com/TimeWtr/plc_bridge/repository/dao"
)

// app 由配置组装出的全部组件，所有命令共用
type app struct {
	cfg    *config.Config
	zap    *zap.Logger
	logger plcbridge.Logger
	db     *gorm.DB

	store      repository.JobStore
	finished   repository.FinishedJobRepository
	guard      *plcbridge.Guard
	codec      *plcbridge.Codec
	reconciler *plcbridge.Reconciler
	lifecycle  *plcbridge.Lifecycle
	ingestor   *plcbridge.Ingestor
	dispatcher *plcbridge.Dispatcher
}

func newApp(configPath string, verbose bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	zl, err := newZap(cfg.Log, verbose)
	if err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	logger := plcbridge.NewZapLogger(zl)

	db, err := repository.OpenSQLite(cfg.FinishedJobsPath())
	if err != nil {
		_ = zl.Sync()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		zap:      zl,
		logger:   logger,
		db:       db,
		store:    plcbridge.NewFileJobStore(cfg.ValidJobsPath()),
		finished: repository.NewFinishedJobRepository(dao.NewFinishedJobDAO(db)),
		guard:    plcbridge.NewGuard(),
	}

	a.codec = plcbridge.NewCodec(cfg.Schema,
		plcbridge.WithJobInfoPrefix(cfg.MessagePrefixes.JobInfo),
		plcbridge.WithBoxInfoPrefix(cfg.MessagePrefixes.BoxInfo),
		plcbridge.WithCodecLogger(logger.Named("codec")))
	a.reconciler = plcbridge.NewReconciler(a.store, a.guard, cfg.Schema, logger.Named("reconcile"))
	a.lifecycle = plcbridge.NewLifecycle(a.store, a.guard, logger.Named("lifecycle"))

	if err = a.initIngestor(); err != nil {
		a.Close()
		return nil, err
	}
	if err = a.initDispatcher(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initIngestor() error {
	batch, _ := a.cfg.Schema.Message(_const.MessageTypeBatchData)
	source := plcbridge.NewCSVSource(a.cfg.JobInfoDir(), batch.Filename,
		a.cfg.JobInfoProcessedDir(), a.cfg.JobInfoErrorDir())

	strategy, err := plcbridge.NewCronStrategy(a.cfg.Ingestion.Schedule)
	if err != nil {
		return err
	}

	opts := []plcbridge.IngestorOption{
		plcbridge.WithStrategy(strategy),
		plcbridge.WithIngestLogger(a.logger.Named("ingest")),
	}
	if a.cfg.Ingestion.Watch {
		opts = append(opts, plcbridge.WithWatch(a.cfg.Ingestion.Debounce))
	}

	a.ingestor, err = plcbridge.NewIngestor(source, a.reconciler, opts...)
	return err
}

func (a *app) initDispatcher() error {
	sender := plcbridge.NewTCPSender(
		plcbridge.WithSendTimeout(a.cfg.Transport.Timeout),
		plcbridge.WithReplyWait(a.cfg.Transport.ReplyWait),
		plcbridge.WithSenderLogger(a.logger.Named("sender")))

	handlers := plcbridge.NewHandlers(a.lifecycle, a.finished, a.guard, a.codec, sender,
		plcbridge.NewJSONAuditSink(a.cfg.Paths.OutputJSON, a.cfg.Schema),
		plcbridge.Destination{Name: "PLT", Address: a.cfg.PLTServer.Address()},
		plcbridge.Destination{Name: "BoxPacking", Address: a.cfg.BPServer.Address()},
		plcbridge.WithHandlersLogger(a.logger.Named("handlers")))

	a.dispatcher = plcbridge.NewDispatcher(a.codec, a.logger.Named("dispatch"))
	return handlers.RegisterTo(a.dispatcher)
}

func (a *app) bridge() *plcbridge.BridgeCore {
	return plcbridge.NewBridge(a.dispatcher, a.logger.Named("bridge"),
		plcbridge.WithListener("PLT", a.cfg.ListenPLT()),
		plcbridge.WithListener("BoxPacking", a.cfg.ListenBP()),
		plcbridge.WithBridgeAck(a.cfg.Transport.Ack),
		plcbridge.WithLimiter(a.cfg.Transport.Limiter),
		plcbridge.WithIngestor(a.ingestor))
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.zap.Sync()
}

func newZap(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

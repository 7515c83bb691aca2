package main

import (
	"github.com/xsuryanshx/cognitive-load/internal/config"
	"github.com/xsuryanshx/cognitive-load/internal/journal"
	logger "github.com/xsuryanshx/cognitive-load/internal/logging"
	"github.com/xsuryanshx/cognitive-load/internal/models"
	"github.com/xsuryanshx/cognitive-load/internal/repository"
	"github.com/xsuryanshx/cognitive-load/internal/router"
	"github.com/xsuryanshx/cognitive-load/internal/session"
	"github.com/xsuryanshx/cognitive-load/internal/warehouse"

	"go.uber.org/zap"
)

func main() {
	// Bootstrap logger for everything that happens before the real logger
	// can read its configuration.
	bootLog, err := zap.NewDevelopment()
	if err != nil {
		panic("failed to initialize bootstrap logger: " + err.Error())
	}

	if err := config.Init(".", bootLog); err != nil {
		bootLog.Fatal("Failed to load configuration", zap.Error(err))
	}

	logConf := config.Conf.Logging
	log, err := logger.Init(logger.Options{
		Directory:  logConf.Directory,
		MaxSize:    logConf.MaxSize,
		MaxBackups: logConf.MaxBackups,
		MaxAge:     logConf.MaxAge,
		Compress:   logConf.Compress,
	})
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Sync()

	users, err := repository.NewUserStore(config.Conf.Storage.UsersPath)
	if err != nil {
		log.Fatal("Failed to open user store", zap.Error(err))
	}

	journalWriter, err := journal.NewWriter(config.Conf.Storage.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize session journal", zap.Error(err))
	}

	// The warehouse sink is optional; the platform is fully functional
	// without it.
	var sink session.Sink
	if config.Conf.Databricks.Enabled {
		client, err := warehouse.NewClient(config.Conf.Databricks, log)
		if err != nil {
			log.Error("Failed to connect to Databricks, uploads disabled", zap.Error(err))
		} else {
			uploader := warehouse.NewUploader(client, config.Conf.Databricks.QueueSize, log)
			defer uploader.Close()
			sink = uploader
		}
	}

	registry := session.NewRegistry(log, journalWriter, sink)

	bank, err := models.LoadSentenceBank(config.Conf.Storage.SentencesPath)
	if err != nil {
		log.Fatal("Failed to load sentence bank", zap.Error(err))
	}

	r := router.Setup(log, registry, users, bank)

	port := ":" + config.Conf.Server.Port
	log.Info("Server listening on http://localhost" + port)
	if err := r.Run(port); err != nil {
		log.Fatal("Failed to run Gin server", zap.Error(err))
	}
}

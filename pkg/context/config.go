package context

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/logging"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Request logging is configured once at startup: COORDINATOR_LOG_LEVEL sets
// the stdout verbosity, and setting GOOGLE_CLOUD_PROJECT attaches the Google
// Cloud sinks for request and event logs.
var config struct {
	LogLevel      uint32          `default:"4" split_words:"true"`
	stdoutLogger  *logrus.Logger  `ignored:"true"`
	sdClient      *logging.Client `ignored:"true"`
	sdLogger      *logging.Logger `ignored:"true"`
	sdEventLogger *logging.Logger `ignored:"true"`
}

type googleConfig struct {
	Project      string `split_words:"true"`
	LogName      string `split_words:"true" default:"coordinator"`
	EventLogName string `split_words:"true" default:"coordinator-events"`
}

func init() {
	if err := envconfig.Process("COORDINATOR", &config); err != nil {
		log.Fatalf("failed to parse coordinator log config, err=%s", err.Error())
	}

	config.stdoutLogger = &logrus.Logger{
		Out: os.Stdout,
		Formatter: &prefixed.TextFormatter{
			FullTimestamp:   true,
			ForceFormatting: true,
			ForceColors:     true,
		},
		Level: logrus.Level(config.LogLevel),
	}

	var gConfig googleConfig
	if err := envconfig.Process("GOOGLE_CLOUD", &gConfig); err != nil {
		log.Fatalf("failed to parse google cloud config, err=%s", err.Error())
	}
	if gConfig.Project == "" {
		return
	}

	client, err := logging.NewClient(context.Background(), gConfig.Project)
	if err != nil {
		config.stdoutLogger.Errorf("failed to init google cloud logging client: %v", err)
		return
	}
	config.sdClient = client
	config.sdLogger = client.Logger(gConfig.LogName)
	config.sdEventLogger = client.Logger(gConfig.EventLogName)
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sarameisburger/go-pcp-client/connector"
	"github.com/sarameisburger/go-pcp-client/logger"
	"github.com/sarameisburger/go-pcp-client/protocol"
	"github.com/sarameisburger/go-pcp-client/validator"
)

var (
	configPath string
	debug      bool
)

func main() {
	flag.StringVar(&configPath, "config", "pcp-client.yaml", "path to the client config file")
	flag.BoolVar(&debug, "debug", false, "log to stdout at debug level")
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := createLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	conn, err := connector.New(log, config.ServerUrl, config.ClientType, config.CACert, config.Cert, config.Key)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}
	defer conn.Close(fmt.Errorf("client shutting down"))

	if config.MessageType != "" {
		schema := validator.Schema{
			Name:        config.MessageType,
			ContentType: validator.ContentTypeJson,
		}
		err := conn.RegisterMessageCallback(schema, func(parsed *protocol.ParsedChunks) {
			log.Infof("Received %s message %s from %s", parsed.Envelope.MessageType, parsed.Envelope.Id, parsed.Envelope.Sender)
			if parsed.HasData {
				log.Infof("Data: %s", parsed.Data)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to register message callback: %w", err)
		}
	}

	if config.HeartbeatSeconds > 0 {
		conn.SetHeartbeatInterval(time.Duration(config.HeartbeatSeconds) * time.Second)
	}

	log.Infof("Connecting to %s as %s", config.ServerUrl, conn.Uri())
	if err := conn.Connect(config.ConnectAttempts); err != nil {
		return err
	}

	if err := conn.MonitorConnection(config.ConnectAttempts); err != nil {
		return err
	}

	osShutdown := make(chan os.Signal, 1)
	signal.Notify(osShutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-osShutdown:
		log.Infof("Received %s, shutting down", sig)
		return nil
	case <-conn.MonitorDone():
		return fmt.Errorf("connection monitor stopped: %w", conn.MonitorErr())
	}
}

func createLogger(config *Config) (*logger.Logger, error) {
	options := &logger.Config{
		FilePath: config.LogFile,
		LogLevel: logger.ToLogLevel(config.LogLevel),
	}

	if debug {
		options.ConsoleWriters = []io.Writer{os.Stdout}
		options.LogLevel = logger.Debug
	}

	return logger.New(options)
}

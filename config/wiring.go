package config

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/graph"
	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/redis"
	"github.com/Ramsey-B/sorrel/pkg/schedule"
	"github.com/Ramsey-B/sorrel/pkg/tracing/exporters"
	"github.com/Ramsey-B/sorrel/pkg/writing"
)

// ListenAddress is the address the HTTP server binds to.
func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Database returns the settings for database.Connect.
func (c Config) Database() database.ConnectConfig {
	return database.ConnectConfig{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

// Tracing returns the settings for exporters.NewOTLPExporter.
func (c Config) Tracing() exporters.OTLPConfig {
	return exporters.OTLPConfig{
		Endpoint: c.TracingOTLPEndpoint,
		Protocol: c.TracingOTLPProtocol,
		Insecure: c.TracingOTLPInsecure,
		Timeout:  c.TracingExportTimeout,
	}
}

// Migration returns the settings for database.NewMigrator.
func (c Config) Migration() database.MigrationConfig {
	return database.MigrationConfig{
		FolderPath:   c.DatabaseMigrationFolderPath,
		Version:      uint(c.DatabaseMigrationVersion),
		Force:        c.DatabaseMigrationForce,
		AutoRollback: c.DatabaseMigrationAutoRollback,
	}
}

// Graph returns the settings for graph.NewClient.
func (c Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
	}
}

// Redis returns the settings for redis.NewClient.
func (c Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Consumer returns the settings for kafka.NewConsumer.
func (c Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.KafkaBrokers,
		Topic:         c.KafkaInputTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
	}
}

// Producer returns the settings for kafka.NewProducer.
func (c Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

// Writing returns the phase deadlines for writing.NewEngine.
func (c Config) Writing() writing.Config {
	return writing.Config{
		ResolveTimeout: c.WriteResolveTimeout,
		WriteTimeout:   c.WriteTimeout,
	}
}

// Matcher builds the broadcast matcher the projector runs with. End flex
// is opt-in; most deployments match on start time alone.
func (c Config) Matcher() schedule.FlexibleMatcher {
	if c.BroadcastEndFlexEnabled {
		return schedule.NewFlexibleStartEndMatcher(c.BroadcastStartFlex, c.BroadcastEndFlex)
	}
	return schedule.NewFlexibleMatcher(c.BroadcastStartFlex)
}

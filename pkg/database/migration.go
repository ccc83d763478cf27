package database

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// Migrator applies the versioned SQL migrations shipped alongside the
// service. Migrations run before the service takes traffic; a failed run
// keeps the process from starting.
type Migrator struct {
	logger ectologger.Logger
	config MigrationConfig
}

type MigrationConfig struct {
	FolderPath   string
	Version      uint // 0 migrates to the latest version in the folder
	Force        int  // non-zero forces the schema version before migrating
	AutoRollback bool // revert a dirty schema to its prior version on failure
}

func NewMigrator(logger ectologger.Logger, config MigrationConfig) *Migrator {
	return &Migrator{
		logger: logger,
		config: config,
	}
}

// Run migrates databaseName through the given driver to the configured
// version.
func (m *Migrator) Run(databaseName string, driver migratedb.Driver) error {
	folder := m.folder()
	if _, err := os.Stat(folder); err != nil {
		return errors.Wrapf(err, "migration folder %s is not readable", folder)
	}

	inst, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrate instance")
	}
	inst.Log = migrateLog{m.logger}

	if m.config.Force != 0 {
		if err := inst.Force(m.config.Force); err != nil {
			return errors.Wrapf(err, "failed to force schema to version %d", m.config.Force)
		}
	}

	prior, _, err := inst.Version()
	if err != nil && err != migrate.ErrNilVersion {
		m.logger.WithError(err).Warn("Could not read current schema version")
	}

	start := time.Now()
	if m.config.Version != 0 {
		err = inst.Migrate(m.config.Version)
	} else {
		err = inst.Up()
	}
	m.logger.WithField("elapsed", time.Since(start).String()).Info("Migration run finished")

	return m.finish(inst, err, prior)
}

// folder resolves the configured path, trying it relative to the working
// directory when it does not exist as given.
func (m *Migrator) folder() string {
	if _, err := os.Stat(m.config.FolderPath); err == nil {
		return m.config.FolderPath
	}
	wd, err := os.Getwd()
	if err != nil {
		return m.config.FolderPath
	}
	return filepath.Join(wd, m.config.FolderPath)
}

func (m *Migrator) finish(inst *migrate.Migrate, err error, prior uint) error {
	if err == nil {
		m.logger.Info("Applied migrations")
		return nil
	}
	if err == migrate.ErrNoChange {
		m.logger.Info("Schema already up to date")
		return nil
	}

	// The recorded schema version exceeds what the folder holds. This
	// happens after a deploy rollback removes migration files; pin the
	// schema to the newest file we do have.
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := latestVersion(m.folder())
		if latestErr != nil {
			return errors.Wrap(latestErr, "failed to find latest migration file")
		}
		m.logger.WithFields(map[string]any{"recorded": prior, "latest": latest}).
			Warn("Schema version ahead of migration folder, forcing to latest file")
		return errors.Wrapf(inst.Force(latest), "failed to force schema to version %d", latest)
	}

	m.logger.WithError(err).Error("Migration run failed")

	version, dirty, versionErr := inst.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		m.logger.WithError(versionErr).Warn("Could not read schema version after failure")
		return err
	}

	if dirty && m.config.AutoRollback {
		if prior == 0 {
			prior = version - 1
		}
		m.logger.WithFields(map[string]any{"dirty": version, "revert": prior}).
			Warn("Schema left dirty, reverting")
		if forceErr := inst.Force(int(prior)); forceErr != nil {
			m.logger.WithError(forceErr).Error("Failed to revert dirty schema")
		}
	}

	// The original failure is returned even after a successful revert.
	return err
}

var migrationFile = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// latestVersion returns the highest version among the up migrations in
// folder.
func latestVersion(folder string) (int, error) {
	files, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		match := migrationFile.FindStringSubmatch(file.Name())
		if len(match) < 2 {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, err
		}
		versions = append(versions, version)
	}
	if len(versions) == 0 {
		return 0, errors.New("no migration files found")
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}

// migrateLog adapts the service logger to golang-migrate's Logger.
type migrateLog struct {
	ectologger.Logger
}

func (l migrateLog) Verbose() bool {
	return true
}

func (l migrateLog) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

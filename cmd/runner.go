package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/AraneaDev/eventually/internal/events"
	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/repositories"
	"github.com/AraneaDev/eventually/internal/shared"
	"github.com/AraneaDev/eventually/internal/ui"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette
	bus        *events.Dispatcher
	db         *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Palette    *ui.Palette
	Bus        *events.Dispatcher // Listeners registered here see every mutation run by the commands
	DB         *sql.DB            // Open database to use instead of config.Database.Path
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Palette == nil {
		opts.Palette = ui.Default
	}
	if opts.Bus == nil {
		opts.Bus = events.NewDispatcher()
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    opts.Palette,
		bus:        opts.Bus,
		db:         opts.DB,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, pivotCommand, planCommand, journalCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openDatabase returns the injected database or opens the configured one with migrations applied.
//
// The returned close function must be called once the command is done.
func (r *Runner) openDatabase() (*sql.DB, func(), error) {
	db := r.db
	closeFn := func() {}

	if db == nil {
		var err error
		db, err = shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		closeFn = func() { db.Close() }

		if err := shared.RunMigrations(db); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if r.config.Journal.Enabled {
		closeDB := closeFn
		unregister := repositories.NewJournalRecorder(repositories.NewJournalRepository(db), r.logger).Register(r.bus)
		closeFn = func() {
			unregister()
			closeDB()
		}
	}

	return db, closeFn, nil
}

// newSynchronizer builds the synchronizer for a configured relation of owner.
func (r *Runner) newSynchronizer(db *sql.DB, owner models.Identifiable, relation string) (*pivot.Synchronizer, error) {
	rel, err := r.config.Relation(relation, models.MorphTypeOf(owner))
	if err != nil {
		return nil, err
	}

	store, err := repositories.NewPivotRepository(db, rel.Name, owner, rel.Touch)
	if err != nil {
		return nil, err
	}

	return pivot.New(pivot.Options{
		Owner:    owner,
		Relation: pivot.RelationName(rel.Name),
		Store:    store,
		Bus:      r.bus,
		Logger:   r.logger,
	}), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain(format+"\n", args...)
}

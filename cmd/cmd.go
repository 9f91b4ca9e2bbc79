// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// targetFlags are shared by every pivot subcommand that addresses one relation of one owner.
func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "relation",
			Aliases:  []string{"r"},
			Usage:    "Relation name declared in config.toml",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "owner",
			Aliases:  []string{"o"},
			Usage:    "Owner id",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "owner-type",
			Usage: "Owner morph type (defaults to the relation's owner_type)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
	}
}

func idFlag(required bool) cli.Flag {
	return &cli.StringSliceFlag{
		Name:     "id",
		Aliases:  []string{"i"},
		Usage:    "Related id (repeatable)",
		Required: required,
	}
}

func attrFlag(required bool) cli.Flag {
	return &cli.StringSliceFlag{
		Name:     "attr",
		Aliases:  []string{"a"},
		Usage:    "Pivot attribute as key=value (repeatable)",
		Required: required,
	}
}

func noTouchFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "no-touch",
		Usage: "Do not update the owner's timestamp",
	}
}

func withFlags(extra ...cli.Flag) []cli.Flag {
	return append(targetFlags(), extra...)
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recent migration",
				Action: r.RollbackDatabase,
			},
		},
	}
}

// pivotCommand handles the pivot mutations of one relation.
func pivotCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "pivot",
		Aliases: []string{"p"},
		Usage:   "Attach, detach, sync, toggle and update related entities",
		Commands: []*cli.Command{
			{
				Name:   "attach",
				Usage:  "Relate ids to the owner",
				Flags:  withFlags(idFlag(true), attrFlag(false), noTouchFlag()),
				Action: r.PivotAttach,
			},
			{
				Name:   "detach",
				Usage:  "Remove ids from the relation (all when no --id is given)",
				Flags:  withFlags(idFlag(false), noTouchFlag()),
				Action: r.PivotDetach,
			},
			{
				Name:  "sync",
				Usage: "Make the relation contain exactly the given ids",
				Flags: withFlags(idFlag(false), attrFlag(false), &cli.BoolFlag{
					Name:  "keep",
					Usage: "Keep related ids that are not listed",
				}),
				Action: r.PivotSync,
			},
			{
				Name:   "toggle",
				Usage:  "Detach related ids and attach the others",
				Flags:  withFlags(idFlag(true), noTouchFlag()),
				Action: r.PivotToggle,
			},
			{
				Name:    "update",
				Aliases: []string{"update-existing"},
				Usage:   "Change attributes of already related ids",
				Flags:   withFlags(idFlag(true), attrFlag(true), noTouchFlag()),
				Action:  r.PivotUpdate,
			},
			{
				Name:   "list",
				Usage:  "List related ids with their attributes",
				Flags:  targetFlags(),
				Action: r.PivotList,
			},
		},
	}
}

// planCommand handles batch plans.
func planCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Apply YAML plans of pivot operations",
		Commands: []*cli.Command{
			{
				Name:  "apply",
				Usage: "Apply every step of a plan file in order",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "file"},
				},
				Flags: []cli.Flag{
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Maximum steps per second",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "continue-on-error",
						Usage: "Keep applying steps after a failure",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlanApply,
			},
		},
	}
}

// journalCommand handles the persisted event journal.
func journalCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Inspect recorded pivot events",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded events",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "relation", Aliases: []string{"r"}, Usage: "Only events of this relation"},
					&cli.StringFlag{Name: "status", Usage: "Only committed or failed events"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of events", Value: 50},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.JournalList,
			},
			{
				Name:  "export",
				Usage: "Export recorded events to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "relation", Aliases: []string{"r"}, Usage: "Only events of this relation"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Export format: csv, json", Value: "csv"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path", Required: true},
				},
				Action: r.JournalExport,
			},
			{
				Name:  "prune",
				Usage: "Remove events older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "Age of the events to remove", Value: 30 * 24 * time.Hour},
				},
				Action: r.JournalPrune,
			},
		},
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve pivot operations over a JSON HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to [server] host:port)",
			},
		},
		Action: r.Serve,
	}
}

package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/AraneaDev/eventually/internal/models"
	"github.com/AraneaDev/eventually/internal/pivot"
	"github.com/AraneaDev/eventually/internal/server"
	"github.com/urfave/cli/v3"
)

// apiRouter builds the HTTP API over db with the runner's bus and relations.
func (r *Runner) apiRouter(db *sql.DB) *server.BasicRouter {
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	router.Handler(server.NewPivotHandler(
		func(owner models.Identifiable, relation string) (*pivot.Synchronizer, error) {
			return r.newSynchronizer(db, owner, relation)
		},
		func(owner models.Ref, relation string) ([]*models.PivotRow, error) {
			return r.listRows(db, target{owner: owner, relation: relation})
		},
		r.logger,
	))
	return router
}

// Serve runs the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	db, closeFn, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, addr, r.apiRouter(db), r.logger)
}

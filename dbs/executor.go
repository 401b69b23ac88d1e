// Package dbs executes parsed queries against a datastore
package dbs

import (
	"context"
	"time"

	"github.com/SpeedReach/surrealdb/kvs"
	"github.com/SpeedReach/surrealdb/sql"
	"github.com/SpeedReach/surrealdb/sql/parser"
	"github.com/SpeedReach/surrealdb/utils/log"
	"go.uber.org/zap"
)

// Response is the result of one statement
type Response struct {
	Result sql.Value
	Time   time.Duration
}

// Executor runs queries. Every query runs inside exactly one
// transaction: either all of its statements take effect or none
// of them do.
type Executor struct {
	ds     *kvs.Datastore
	logger *zap.Logger
}

// New creates an executor for ds
func New(ds *kvs.Datastore, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{ds: ds, logger: logger}
}

// Query parses and executes text
func (executor *Executor) Query(ctx context.Context, opt *sql.Options, text string) ([]Response, error) {
	stmts, err := parser.Parse(text)

	if err != nil {
		return nil, err
	}

	return executor.Execute(ctx, opt, stmts)
}

// Execute computes stmts in order inside one transaction. The
// transaction is read-write if any of the statements is writeable.
// It is committed if every statement succeeds and cancelled as soon
// as one fails, in which case that statement's error is returned.
// Conflicting commits are retried from the first statement. Errors
// raised by THROW are returned as they are and never retried.
func (executor *Executor) Execute(ctx context.Context, opt *sql.Options, stmts []sql.Statement) ([]Response, error) {
	write := false

	for _, stmt := range stmts {
		write = write || stmt.Writeable()
	}

	if err := opt.Valid(); err != nil {
		return nil, err
	}

	if err := opt.Check(write); err != nil {
		return nil, err
	}

	ctx = log.WithFields(ctx, zap.String("ns", opt.Namespace), zap.String("db", opt.Database))
	logger, ctx := log.LoggerFromContext(ctx, executor.logger)

	var responses []Response

	run := func(txn *kvs.Transaction) error {
		responses = make([]Response, 0, len(stmts))

		for i, stmt := range stmts {
			start := time.Now()
			result, err := stmt.Compute(ctx, opt, txn, nil)

			if err != nil {
				logger.Debug("statement failed", zap.Int("statement", i), zap.Bool("thrown", sql.IsThrown(err)), zap.Error(err))

				return err
			}

			responses = append(responses, Response{Result: result, Time: time.Since(start)})
		}

		return nil
	}

	var err error

	if write {
		err = executor.ds.Update(ctx, run)
	} else {
		err = executor.ds.View(ctx, run)
	}

	if err != nil {
		return nil, err
	}

	logger.Debug("executed query", zap.Int("statements", len(stmts)), zap.Bool("write", write))

	return responses, nil
}

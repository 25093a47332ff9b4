// Package pool proves batches of assignments concurrently against one
// read-only proving key.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/internal/metrics"
	"github.com/eon-protocol/zkpipe/witness"
)

var ErrNoAssignment = errors.New("job has no assignment")

// Job is one proving request. Exactly one of Assignment and Inputs is set.
type Job struct {
	ID         string
	Assignment frontend.Circuit
	Inputs     map[string]any
}

type Output struct {
	ID      string
	Proof   *zkpipe.Proof
	Publics fr.Vector
	// Satisfied is false when the assignment violates a gate; the proof is
	// then one that verifiers reject.
	Satisfied bool
	Err       error
}

type Prover struct {
	pk      *zkpipe.Pk
	workers int
	prove   []zkpipe.ProverOption
	bind    []witness.Option
	log     zerolog.Logger
}

type Option func(*Prover)

// WithWorkers bounds the number of concurrent proofs; zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Prover) {
		p.workers = n
	}
}

func WithProverOptions(opts ...zkpipe.ProverOption) Option {
	return func(p *Prover) {
		p.prove = append(p.prove, opts...)
	}
}

func WithBindOptions(opts ...witness.Option) Option {
	return func(p *Prover) {
		p.bind = append(p.bind, opts...)
	}
}

func New(pk *zkpipe.Pk, opts ...Option) *Prover {
	res := &Prover{pk: pk, log: logger.Logger().With().Str("component", "pool").Logger()}
	for _, opt := range opts {
		opt(res)
	}
	if res.workers <= 0 {
		res.workers = runtime.GOMAXPROCS(0)
	}
	return res
}

// Prove runs every job and returns their outputs in job order. A failing job
// is reported in its Output; the error is only for a done context.
func (me *Prover) Prove(ctx context.Context, jobs []Job) ([]Output, error) {
	outputs := make([]Output, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(me.workers)
	for i := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outputs[i] = me.run(gctx, &jobs[i])
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return outputs, err
	}
	return outputs, nil
}

func (me *Prover) bindJob(job *Job) (*witness.Witness, error) {
	cs := me.pk.ConstraintSystem()
	switch {
	case job.Assignment != nil:
		return witness.Bind(cs, job.Assignment, me.bind...)
	case job.Inputs != nil:
		return witness.FromMap(cs, job.Inputs, me.bind...)
	}
	return nil, ErrNoAssignment
}

func (me *Prover) run(ctx context.Context, job *Job) (out Output) {
	out.ID = job.ID
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case out.Err != nil:
			outcome = "error"
		case !out.Satisfied:
			outcome = "unsatisfied"
		}
		metrics.ObserveProof(start, outcome)
	}()

	w, err := me.bindJob(job)
	if err != nil {
		out.Err = fmt.Errorf("job %s: %w", job.ID, err)
		return
	}
	proof, err := me.pk.ProveContext(ctx, w, me.prove...)
	if err != nil {
		out.Err = fmt.Errorf("job %s: %w", job.ID, err)
		return
	}
	out.Proof, out.Publics, out.Satisfied = proof, w.Public(), w.Satisfied()
	me.log.Debug().Str("job", job.ID).Bool("satisfied", out.Satisfied).Dur("took", time.Since(start)).Msg("proof done")
	return
}

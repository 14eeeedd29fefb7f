package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtroode/authz-server/internal/model"
)

// SweepResult counts the records removed by one sweep.
type SweepResult struct {
	Codes         int64
	RefreshTokens int64
	Revocations   int64
}

// Sweeper deletes expired credentials. Nothing depends on it having run.
type Sweeper struct {
	codes       model.CodeStore
	refresh     model.RefreshTokenStore
	revocations model.RevocationList
	interval    time.Duration
	obs         Observer
}

func NewSweeper(codes model.CodeStore, refresh model.RefreshTokenStore, revocations model.RevocationList, interval time.Duration, obs Observer) *Sweeper {
	return &Sweeper{codes: codes, refresh: refresh, revocations: revocations, interval: interval, obs: obs}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.obs.Logger.Warn("Sweeper: sweep incomplete", "error", err.Error())
			}
			s.obs.Logger.Debug("Sweeper: sweep finished",
				"codes", res.Codes,
				"refresh_tokens", res.RefreshTokens,
				"revocations", res.Revocations)
		}
	}
}

// Sweep runs every cleanup once. A failing step does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.obs.now()
	var (
		res  SweepResult
		errs []error
		err  error
	)

	if res.Codes, err = s.codes.DeleteExpiredCodes(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("codes: %w", err))
	}
	if res.RefreshTokens, err = s.refresh.DeleteExpiredRefreshTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("refresh tokens: %w", err))
	}
	if res.Revocations, err = s.revocations.DeleteExpiredRevocations(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("revocations: %w", err))
	}
	return res, errors.Join(errs...)
}

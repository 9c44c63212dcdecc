package service

import (
	"context"
	"errors"
	"fmt"

	"sourcetrader/internal/metrics"
	"sourcetrader/internal/models"
	"sourcetrader/internal/repository"
	"sourcetrader/pkg/utils"
)

var (
	// ErrResolutionMiss - для закрытия не найдено подходящее открытие
	ErrResolutionMiss = errors.New("no matching open signal")
	// ErrNotClose - Resolve вызван для открытия
	ErrNotClose = errors.New("signal is not a close")
)

// ReferenceResolver связывает закрытие с открытием.
//
// Правила:
// - CLOSE_LONG ищет LONG, CLOSE_SHORT ищет SHORT того же символа
// - подсказка источника (ref_open_id) принимается, если это более раннее открытие той же стороны и символа
// - иначе берется самое позднее открытие с id меньше id закрытия
//
// Несколько незакрытых открытий по одному символу и стороне не различаются:
// закрытие привязывается к самому позднему.
type ReferenceResolver struct {
	signals SignalRepositoryInterface
	logger  *utils.Logger
}

// NewReferenceResolver создает резолвер
func NewReferenceResolver(signals SignalRepositoryInterface, logger *utils.Logger) *ReferenceResolver {
	if logger == nil {
		logger = utils.L()
	}
	return &ReferenceResolver{
		signals: signals,
		logger:  logger.WithComponent("resolver"),
	}
}

// Resolve возвращает открытие для закрытия или ErrResolutionMiss
func (r *ReferenceResolver) Resolve(ctx context.Context, closing *models.Signal, hint *int64) (*models.Signal, error) {
	event, ok := closing.Event().(models.CloseEvent)
	if !ok {
		return nil, fmt.Errorf("%w: id=%d side=%s", ErrNotClose, closing.ID, closing.Side)
	}
	openSide := event.Direction().OpenSide()

	if hint != nil && *hint > 0 {
		open, err := r.signals.GetByID(ctx, *hint)
		switch {
		case err == nil && r.matches(closing, open, openSide):
			metrics.RecordResolution("hint")
			return open, nil
		case err != nil && !errors.Is(err, repository.ErrSignalNotFound):
			metrics.RecordResolution("error")
			return nil, fmt.Errorf("failed to load hinted open %d: %w", *hint, err)
		default:
			r.logger.Info("ignoring producer ref_open_id",
				utils.SignalID(closing.ID),
				utils.RefOpenID(*hint),
				utils.Symbol(closing.Symbol),
			)
		}
	}

	open, err := r.signals.LatestOpen(ctx, closing.Symbol, openSide, closing.ID)
	if errors.Is(err, repository.ErrSignalNotFound) {
		metrics.RecordResolution("miss")
		return nil, ErrResolutionMiss
	}
	if err != nil {
		metrics.RecordResolution("error")
		return nil, fmt.Errorf("failed to find latest open: %w", err)
	}

	metrics.RecordResolution("latest")
	return open, nil
}

func (r *ReferenceResolver) matches(closing, open *models.Signal, openSide models.Side) bool {
	if open == nil || open.Side != openSide || open.Symbol != closing.Symbol {
		return false
	}
	return closing.ID == 0 || open.ID < closing.ID
}

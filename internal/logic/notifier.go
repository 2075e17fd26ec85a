package logic

import (
	"context"

	"go.uber.org/zap"
)

// Invalidator is the part of the hierarchy service the notifier needs.
type Invalidator interface {
	Invalidate(playerID string)
}

// RatingChangeNotifier is the invalidation channel. The match-resolution
// collaborator calls NotifyRatingChanged for every affected player
// immediately after a successful rating update; the invalidation is
// synchronous, so once the caller's write is "complete" no reader can
// observe the old cached hierarchy.
type RatingChangeNotifier struct {
	cache  Invalidator
	logger *zap.SugaredLogger
}

func NewRatingChangeNotifier(cache Invalidator, logger *zap.Logger) *RatingChangeNotifier {
	return &RatingChangeNotifier{cache: cache, logger: logger.Sugar()}
}

func (n *RatingChangeNotifier) NotifyRatingChanged(ctx context.Context, playerID string) {
	n.cache.Invalidate(playerID)
	n.logger.Debugw("Rating changed, hierarchy invalidated", "player", playerID)
}

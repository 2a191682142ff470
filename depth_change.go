package lob

// CalculateDepthChange calculates the depth change implied by a book log.
// It returns a DepthChange indicating which side and price level should be
// updated. Note: for LogTypeMatch, the side returned is the maker's side
// (opposite of the log's side).
func CalculateDepthChange(log *BookLog) DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size,
		}
	case LogTypeCancel:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size.Neg(),
		}
	case LogTypeMatch:
		// Match reduces liquidity from the maker side.
		// The log.Side is the taker's side, so we update the opposite side.
		return DepthChange{
			Side:     log.Side.Opposite(),
			Price:    log.Price,
			SizeDiff: log.Size.Neg(),
		}
	case LogTypeAmend:
		// Priority lost (price changed or size increased): the order left the
		// book at its old level; the re-entry is covered by the open/match
		// logs that follow, so only the old size is removed here.
		if !log.OldPrice.Equal(log.Price) || log.Size.GreaterThan(log.OldSize) {
			return DepthChange{
				Side:     log.Side,
				Price:    log.OldPrice,
				SizeDiff: log.OldSize.Neg(),
			}
		}

		// Priority kept (price same, size decreased): in-place update, the
		// difference is NewSize - OldSize.
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: log.Size.Sub(log.OldSize),
		}
	}

	return DepthChange{}
}

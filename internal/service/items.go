package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/internal/tracking"
)

// List returns the stored collection.
func (s *Service) List(ctx context.Context) ([]tracking.Item, error) {
	items, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return items, nil
}

// Track scrapes url once to seed title and initial price, then appends a new
// item. The target is validated before any page is loaded.
func (s *Service) Track(ctx context.Context, url string, mode tracking.Mode, value decimal.Decimal) (tracking.Item, error) {
	if err := tracking.ValidateTarget(mode, value); err != nil {
		return tracking.Item{}, err
	}

	url = strings.TrimSpace(url)
	res, err := s.extractor.Extract(ctx, url)
	if err != nil {
		return tracking.Item{}, fmt.Errorf("seed %s: %w", url, err)
	}

	var created tracking.Item
	err = s.mutate(ctx, func(items []tracking.Item) ([]tracking.Item, error) {
		item, err := tracking.NewItem(url, res.Title, mode, value, res.Price, s.now())
		if err != nil {
			return nil, err
		}
		item.ID = uniqueID(items, item.ID)
		created = item
		return append(items, item), nil
	})
	if err != nil {
		return tracking.Item{}, err
	}

	s.logger.Info().Str("id", created.ID).Str("title", created.Title).
		Str("initial", created.InitialPrice.String()).
		Str("desired", created.DesiredPrice.String()).
		Msg("item tracked")
	return created, nil
}

// Retarget changes an item's mode and value and re-derives its target price.
func (s *Service) Retarget(ctx context.Context, id string, mode tracking.Mode, value decimal.Decimal) (tracking.Item, error) {
	var changed tracking.Item
	err := s.mutate(ctx, func(items []tracking.Item) ([]tracking.Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", tracking.ErrItemNotFound, id)
		}
		if err := items[i].SetTarget(mode, value); err != nil {
			return nil, err
		}
		changed = items[i]
		return items, nil
	})
	if err != nil {
		return tracking.Item{}, err
	}
	s.logger.Info().Str("id", id).Str("desired", changed.DesiredPrice.String()).Msg("item retargeted")
	return changed, nil
}

// Remove deletes an item by id and returns it.
func (s *Service) Remove(ctx context.Context, id string) (tracking.Item, error) {
	var removed tracking.Item
	err := s.mutate(ctx, func(items []tracking.Item) ([]tracking.Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", tracking.ErrItemNotFound, id)
		}
		removed = items[i]
		return append(items[:i], items[i+1:]...), nil
	})
	if err != nil {
		return tracking.Item{}, err
	}
	s.logger.Info().Str("id", id).Msg("item removed")
	return removed, nil
}

// mutate applies fn to the stored collection under the run lock so an edit
// cannot be overwritten by a concurrent pass.
func (s *Service) mutate(ctx context.Context, fn func([]tracking.Item) ([]tracking.Item, error)) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		return ErrPassInProgress
	}
	if unlock != nil {
		defer unlock()
	}

	items, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save items: %w", err)
	}
	return nil
}

func indexOf(items []tracking.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// uniqueID bumps a millisecond id until it does not collide.
func uniqueID(items []tracking.Item, id string) string {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return id
	}
	for indexOf(items, id) >= 0 {
		n++
		id = strconv.FormatInt(n, 10)
	}
	return id
}

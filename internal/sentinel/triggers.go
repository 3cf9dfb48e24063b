package sentinel

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"sentinel/internal/model"
	"sentinel/internal/storage"
)

var ErrTriggerNotFound = errors.New("trigger not found")

func (s *Service) Triggers(ctx context.Context) ([]model.AlertTrigger, error) {
	var triggers []model.AlertTrigger
	if _, err := s.state.Load(ctx, storage.KeyTriggers, &triggers); err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}

	return triggers, nil
}

func (s *Service) AddTrigger(ctx context.Context, spec model.TriggerSpec) (model.AlertTrigger, error) {
	trigger, err := model.NewTrigger(s.newID(), spec)
	if err != nil {
		return model.AlertTrigger{}, err
	}

	err = s.updateTriggers(ctx, func(triggers []model.AlertTrigger) ([]model.AlertTrigger, error) {
		return append(triggers, trigger), nil
	})
	if err != nil {
		return model.AlertTrigger{}, err
	}

	return trigger, nil
}

func (s *Service) RemoveTrigger(ctx context.Context, id string) error {
	return s.updateTriggers(ctx, func(triggers []model.AlertTrigger) ([]model.AlertTrigger, error) {
		kept := lo.Reject(triggers, func(t model.AlertTrigger, _ int) bool { return t.ID == id })
		if len(kept) == len(triggers) {
			return nil, fmt.Errorf("%s: %w", id, ErrTriggerNotFound)
		}

		return kept, nil
	})
}

func (s *Service) SetTriggerEnabled(ctx context.Context, id string, enabled bool) (model.AlertTrigger, error) {
	var trigger model.AlertTrigger

	err := s.updateTriggers(ctx, func(triggers []model.AlertTrigger) ([]model.AlertTrigger, error) {
		_, i, ok := lo.FindIndexOf(triggers, func(t model.AlertTrigger) bool { return t.ID == id })
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrTriggerNotFound)
		}

		triggers[i].Enabled = enabled
		trigger = triggers[i]
		return triggers, nil
	})

	return trigger, err
}

func (s *Service) updateTriggers(ctx context.Context, fn func([]model.AlertTrigger) ([]model.AlertTrigger, error)) error {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	triggers, err := s.Triggers(ctx)
	if err != nil {
		return err
	}

	updated, err := fn(triggers)
	if err != nil {
		return err
	}

	if err := s.state.Save(ctx, storage.KeyTriggers, updated); err != nil {
		return fmt.Errorf("save triggers: %w", err)
	}

	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/i474232898/pasture-risk/internal/turnout"
)

const horsePrefix = "horse/"

// ErrHorseNotFound is returned for an unknown horse ID.
var ErrHorseNotFound = errors.New("horse not found")

// HorseRepository persists horse profiles as JSON in a KV.
type HorseRepository struct {
	kv KV
}

// NewHorseRepository wraps kv.
func NewHorseRepository(kv KV) *HorseRepository {
	return &HorseRepository{kv: kv}
}

// Save validates h, assigns an ID when empty, and stores it.
func (r *HorseRepository) Save(ctx context.Context, h turnout.HorseProfile) (turnout.HorseProfile, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if err := h.Validate(); err != nil {
		return turnout.HorseProfile{}, err
	}
	data, err := json.Marshal(h)
	if err != nil {
		return turnout.HorseProfile{}, err
	}
	if err := r.kv.Save(ctx, horsePrefix+h.ID, data); err != nil {
		return turnout.HorseProfile{}, fmt.Errorf("save horse %s: %w", h.ID, err)
	}
	return h, nil
}

// Get loads one horse.
func (r *HorseRepository) Get(ctx context.Context, id string) (turnout.HorseProfile, error) {
	data, err := r.kv.Load(ctx, horsePrefix+id)
	if errors.Is(err, ErrKeyNotFound) {
		return turnout.HorseProfile{}, ErrHorseNotFound
	}
	if err != nil {
		return turnout.HorseProfile{}, err
	}
	var h turnout.HorseProfile
	if err := json.Unmarshal(data, &h); err != nil {
		return turnout.HorseProfile{}, fmt.Errorf("decode horse %s: %w", id, err)
	}
	return h, nil
}

// List returns every stored horse ordered by ID.
func (r *HorseRepository) List(ctx context.Context) ([]turnout.HorseProfile, error) {
	keys, err := r.kv.Keys(ctx, horsePrefix)
	if err != nil {
		return nil, err
	}
	horses := make([]turnout.HorseProfile, 0, len(keys))
	for _, k := range keys {
		h, err := r.Get(ctx, k[len(horsePrefix):])
		if err != nil {
			return nil, err
		}
		horses = append(horses, h)
	}
	return horses, nil
}

// Delete removes a horse; ErrHorseNotFound if it does not exist.
func (r *HorseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.kv.Load(ctx, horsePrefix+id); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return ErrHorseNotFound
		}
		return err
	}
	return r.kv.Delete(ctx, horsePrefix+id)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"shortlink/internal/repository"
)

func userLinksKey(owner string) string { return "user:" + owner + ":urls" }

// OwnershipIndex keeps each user's short codes, newest first. It is derived
// from the link records and only eventually consistent with them.
type OwnershipIndex struct {
	store repository.Store
}

func NewOwnershipIndex(s repository.Store) *OwnershipIndex {
	return &OwnershipIndex{store: s}
}

func decodeCodes(raw string) ([]string, error) {
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Codes returns the owner's codes; an owner without links has none.
func (x *OwnershipIndex) Codes(ctx context.Context, owner string) ([]string, error) {
	raw, err := x.store.Get(ctx, userLinksKey(owner))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeCodes(raw)
}

// Add prepends code to the owner's list.
func (x *OwnershipIndex) Add(ctx context.Context, owner, code string) error {
	return repository.Update(ctx, x.store, userLinksKey(owner), func(cur string, found bool) (string, error) {
		var codes []string
		if found {
			var err error
			if codes, err = decodeCodes(cur); err != nil {
				return "", err
			}
		}
		codes = slices.DeleteFunc(codes, func(c string) bool { return c == code })
		b, err := json.Marshal(append([]string{code}, codes...))
		return string(b), err
	})
}

// Remove drops code from the owner's list. A missing list or entry is fine.
func (x *OwnershipIndex) Remove(ctx context.Context, owner, code string) error {
	return repository.Update(ctx, x.store, userLinksKey(owner), func(cur string, found bool) (string, error) {
		if !found {
			return "", repository.ErrSkipWrite
		}
		codes, err := decodeCodes(cur)
		if err != nil {
			return "", err
		}
		if !slices.Contains(codes, code) {
			return "", repository.ErrSkipWrite
		}
		codes = slices.DeleteFunc(codes, func(c string) bool { return c == code })
		if codes == nil {
			codes = []string{}
		}
		b, err := json.Marshal(codes)
		return string(b), err
	})
}

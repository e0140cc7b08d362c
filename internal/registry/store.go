package registry

import (
	"context"
	"errors"
	"sort"

	"botvac-bridge/internal/robot"
)

// ErrNotFound is returned for serials the store does not know.
var ErrNotFound = errors.New("robot identity not found")

// Store keeps the identities of the robots the bridge may talk to.
type Store interface {
	Save(ctx context.Context, id robot.Identity) error
	Get(ctx context.Context, serial string) (robot.Identity, error)
	List(ctx context.Context) ([]robot.Identity, error)
	Delete(ctx context.Context, serial string) error
	SetPersistentMaps(ctx context.Context, serial string, enabled bool) error
}

// SaveAll stores every identity and stops at the first failure.
func SaveAll(ctx context.Context, s Store, ids []robot.Identity) error {
	for _, id := range ids {
		if err := s.Save(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func sortBySerial(ids []robot.Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Serial < ids[j].Serial })
}

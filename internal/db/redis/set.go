package redis

import (
	"context"

	"github.com/memodeck/memodeck/internal/db"
)

// SAdd adds a member to a set.
func (s *Store) SAdd(ctx context.Context, key string, member string) error {
	cmd := s.b().Sadd().Key(key).Member(member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSAdd, Err: err}
	}
	return nil
}

// SRem removes a member from a set.
func (s *Store) SRem(ctx context.Context, key string, member string) error {
	cmd := s.b().Srem().Key(key).Member(member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSRem, Err: err}
	}
	return nil
}

// SMembers returns all members of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	cmd := s.b().Smembers().Key(key).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpSMembers, Err: err}
	}
	return members, nil
}

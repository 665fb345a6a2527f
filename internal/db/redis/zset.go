package redis

import (
	"context"
	"strconv"

	"github.com/memodeck/memodeck/internal/db"
)

// ZAdd adds a member with the given score.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cmd := s.b().Zadd().Key(key).ScoreMember().ScoreMember(score, member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRange returns members by index range (inclusive), in score order.
func (s *Store) ZRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	cmd := s.b().Zrange().Key(key).Min(strconv.Itoa(start)).Max(strconv.Itoa(stop)).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRange, Err: err}
	}
	return members, nil
}

// ZCard returns the member count.
func (s *Store) ZCard(ctx context.Context, key string) (int, error) {
	cmd := s.b().Zcard().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpZCard, Err: err}
	}
	return int(n), nil
}

// ZRem removes a member.
func (s *Store) ZRem(ctx context.Context, key string, member string) error {
	cmd := s.b().Zrem().Key(key).Member(member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZRem, Err: err}
	}
	return nil
}

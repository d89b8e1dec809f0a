//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"recordstore/internal/domain"
	"recordstore/internal/store"
	pkgerrors "recordstore/pkg/errors"
	"recordstore/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	client *store.PostgresClient
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())

	client, err := store.NewPostgresClient([]string{s.pg.DSN})
	s.Require().NoError(err)
	s.client = client
	s.T().Cleanup(func() { _ = client.Close() })

	s.Require().NoError(client.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.pg.Truncate(context.Background(), s.T())
}

func (s *PostgresStoreSuite) newRecord(payload map[string]any) domain.Record {
	return domain.Record{
		ID:            uuid.NewString(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		SchemaVersion: 1,
	}
}

func (s *PostgresStoreSuite) TestPutGetRoundtrip() {
	ctx := context.Background()
	rec := s.newRecord(map[string]any{"name": "a", "count": float64(3)})

	s.Require().NoError(s.client.Put(ctx, 0, rec))

	got, err := s.client.Get(ctx, 0, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(rec.Payload, got.Payload)
	s.Equal(rec.SchemaVersion, got.SchemaVersion)
	s.WithinDuration(rec.CreatedAt, got.CreatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.client.Get(context.Background(), 0, "never-written")
	s.Require().Error(err)
	s.True(pkgerrors.IsKind(err, pkgerrors.KindNotFound))
}

func (s *PostgresStoreSuite) TestPutIdenticalReplay() {
	ctx := context.Background()
	rec := s.newRecord(map[string]any{"name": "a"})

	s.Require().NoError(s.client.Put(ctx, 0, rec))
	s.Require().NoError(s.client.Put(ctx, 0, rec))

	got, err := s.client.Get(ctx, 0, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.Payload, got.Payload)
}

func (s *PostgresStoreSuite) TestPutConflictKeepsOriginal() {
	ctx := context.Background()
	rec := s.newRecord(map[string]any{"name": "original"})
	s.Require().NoError(s.client.Put(ctx, 0, rec))

	clash := rec
	clash.Payload = map[string]any{"name": "intruder"}
	err := s.client.Put(ctx, 0, clash)
	s.Require().Error(err)
	s.True(pkgerrors.IsKind(err, pkgerrors.KindConflict))

	got, err := s.client.Get(ctx, 0, rec.ID)
	s.Require().NoError(err)
	s.Equal("original", got.Payload["name"])
}

func (s *PostgresStoreSuite) TestExists() {
	ctx := context.Background()
	rec := s.newRecord(map[string]any{"name": "a"})

	ok, err := s.client.Exists(ctx, 0, rec.ID)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.client.Put(ctx, 0, rec))

	ok, err = s.client.Exists(ctx, 0, rec.ID)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *PostgresStoreSuite) TestPing() {
	s.NoError(s.client.Ping(context.Background()))
}

func (s *PostgresStoreSuite) TestCancelledContextIsDeadline() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.client.Put(ctx, 0, s.newRecord(map[string]any{"name": "a"}))
	s.Require().Error(err)
	s.True(pkgerrors.IsKind(err, pkgerrors.KindDeadline))
}

//go:build integration

package repositories_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"chat-core/internal/db"
	"chat-core/internal/directory"
	"chat-core/internal/models"
	"chat-core/internal/pagination"
	"chat-core/internal/repositories"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("chat"),
		postgres.WithUsername("chat"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		os.Exit(1)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("failed to get connection string: %s", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	testDB, err = db.Connect(ctx, dsn)
	if err != nil {
		log.Printf("failed to connect: %s", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	if _, err := testDB.ExecContext(ctx, `INSERT INTO users (id, first_name, last_name) VALUES
        (1, 'Ada', 'Lovelace'), (2, 'Grace', 'Hopper'), (3, 'Alan', 'Turing'), (4, 'Inactive', 'User')`); err != nil {
		log.Printf("failed to seed users: %s", err)
		os.Exit(1)
	}
	if _, err := testDB.ExecContext(ctx, `UPDATE users SET is_active = FALSE WHERE id = 4`); err != nil {
		log.Printf("failed to seed users: %s", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(`TRUNCATE message_reads, messages, room_participants, rooms RESTART IDENTITY`)
	require.NoError(t, err)
}

func TestDirectRoomConcurrentCreation(t *testing.T) {
	truncate(t)
	repo := repositories.NewRoomRepo(testDB)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := int64(1), int64(2)
			if i%2 == 1 {
				a, b = b, a
			}
			room, _, err := repo.CreateDirect(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = room.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var active int
	require.NoError(t, testDB.Get(&active, `SELECT COUNT(*) FROM rooms WHERE kind = 'DIRECT' AND state <> 'DELETED'`))
	assert.Equal(t, 1, active)
}

func TestDirectRoomRestoreAndClash(t *testing.T) {
	truncate(t)
	repo := repositories.NewRoomRepo(testDB)
	ctx := context.Background()

	room, outcome, err := repo.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.DirectCreated, outcome)
	assert.Equal(t, "1:2", *room.DedupKey)

	_, err = repo.SoftDeleteRoom(ctx, room.ID)
	require.NoError(t, err)
	_, err = repo.SoftDeleteRoom(ctx, room.ID)
	assert.ErrorIs(t, err, repositories.ErrStateConflict)

	again, outcome, err := repo.CreateDirect(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DirectRestored, outcome)
	assert.Equal(t, room.ID, again.ID)
	assert.Equal(t, models.LifecycleRestored, again.State)

	_, err = repo.GetRoom(ctx, 999)
	assert.ErrorIs(t, err, repositories.ErrRoomNotFound)
}

func TestMessagesReadsAndUnread(t *testing.T) {
	truncate(t)
	rooms := repositories.NewRoomRepo(testDB)
	messages := repositories.NewMessageRepo(testDB)
	reads := repositories.NewReadRepo(testDB, 2)
	ctx := context.Background()

	room, err := rooms.CreateGroup(ctx, 1, "Eng", []int64{2, 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, room.ParticipantIDs)

	var last models.Message
	for _, content := range []string{"one", "two", "three", "four", "five"} {
		last, err = messages.CreateMessage(ctx, room.ID, 1, content)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1}, last.ReadBy)

	reloaded, err := rooms.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastMessage)
	assert.Equal(t, "five", reloaded.LastMessage.Content)

	_, err = messages.SoftDeleteMessage(ctx, last.ID)
	require.NoError(t, err)
	_, err = messages.UpdateContent(ctx, last.ID, "edited")
	assert.ErrorIs(t, err, repositories.ErrStateConflict)

	counts, err := reads.UnreadCounts(ctx, 2, []int64{room.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, counts[room.ID])

	marked, err := reads.MarkRoomRead(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, marked)
	marked, err = reads.MarkRoomRead(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Zero(t, marked)

	counts, err = reads.UnreadCounts(ctx, 2, []int64{room.ID})
	require.NoError(t, err)
	assert.Zero(t, counts[room.ID])

	deleted, err := messages.ListMessages(ctx, room.ID, repositories.MessageFilter{OnlyDeleted: true}, pagination.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, last.ID, deleted[0].ID)

	restored, err := messages.RestoreMessage(ctx, last.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleRestored, restored.State)
}

func TestRoomListingPaginationAndSearch(t *testing.T) {
	truncate(t)
	repo := repositories.NewRoomRepo(testDB)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := repo.CreateGroup(ctx, 1, "room", []int64{2, 3})
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	var sizes []int
	var after *pagination.Cursor
	for {
		rows, err := repo.ListRoomsForUser(ctx, 1, "", pagination.Query{After: after, Limit: 10})
		require.NoError(t, err)
		page, next := pagination.Next(rows, 10, func(r models.Room) pagination.Cursor {
			return pagination.Cursor{At: r.LastModifiedAt, ID: r.ID}
		})
		sizes = append(sizes, len(page))
		for _, r := range page {
			assert.False(t, seen[r.ID])
			seen[r.ID] = true
		}
		if next == nil {
			break
		}
		after, err = pagination.Decode(*next)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{10, 10, 5}, sizes)

	direct, _, err := repo.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	found, err := repo.ListRoomsForUser(ctx, 1, "hopp", pagination.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, direct.ID, found[0].ID)
}

func TestParticipantsAndDirectory(t *testing.T) {
	truncate(t)
	repo := repositories.NewRoomRepo(testDB)
	users := directory.NewUsers(testDB)
	ctx := context.Background()

	room, err := repo.CreateGroup(ctx, 1, "Eng", []int64{2, 3})
	require.NoError(t, err)

	require.NoError(t, repo.RemoveParticipant(ctx, room.ID, 3))
	assert.ErrorIs(t, repo.RemoveParticipant(ctx, room.ID, 3), repositories.ErrNotParticipant)

	added, err := repo.AddParticipants(ctx, room.ID, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, added)

	exists, err := users.UserExists(ctx, 2)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = users.UserExists(ctx, 4)
	require.NoError(t, err)
	assert.False(t, exists, "inactive users are unknown")

	summaries, err := users.BulkUsers(ctx, []int64{3, 1, 42})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Ada Lovelace", summaries[0].DisplayName())
}

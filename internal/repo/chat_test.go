package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kalam-backend/internal/models"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Room{}, &models.Chat{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func chatStores(t *testing.T) map[string]ChatRepoInterface {
	t.Helper()
	pebbleRepo, err := OpenPebbleChatRepo("chats", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pebbleRepo.Close() })

	return map[string]ChatRepoInterface{
		"memory": NewMemoryChatRepository(),
		"pebble": pebbleRepo,
		"gorm":   NewChatRepository(openSQLite(t)),
	}
}

func TestChatHistoryOrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	for name, store := range chatStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				require.NoError(t, store.CreateChat(ctx, &models.Chat{
					RoomID:  "7",
					UserID:  "u1",
					Message: fmt.Sprintf(`{"erased":[%d]}`, i),
				}))
			}
			require.NoError(t, store.CreateChat(ctx, &models.Chat{RoomID: "9", UserID: "u2", Message: `{"erased":[99]}`}))
			require.NoError(t, store.CreateChat(ctx, &models.Chat{RoomID: "77", UserID: "u2", Message: `{"erased":[77]}`}))

			all, err := store.GetRoomHistory(ctx, "7", 0)
			require.NoError(t, err)
			require.Len(t, all, 5)
			for i, c := range all {
				assert.Equal(t, fmt.Sprintf(`{"erased":[%d]}`, i), c.Message)
				assert.Equal(t, "7", c.RoomID)
				assert.Equal(t, "u1", c.UserID)
			}

			recent, err := store.GetRoomHistory(ctx, "7", 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, `{"erased":[3]}`, recent[0].Message)
			assert.Equal(t, `{"erased":[4]}`, recent[1].Message)

			other, err := store.GetRoomHistory(ctx, "9", 10)
			require.NoError(t, err)
			require.Len(t, other, 1)

			empty, err := store.GetRoomHistory(ctx, "404", 10)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestPebbleSequenceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	store, err := OpenPebbleChatRepo("chats", &pebble.Options{FS: fs})
	require.NoError(t, err)
	require.NoError(t, store.CreateChat(ctx, &models.Chat{RoomID: "1", UserID: "u", Message: `"a"`}))
	require.NoError(t, store.CreateChat(ctx, &models.Chat{RoomID: "1", UserID: "u", Message: `"b"`}))
	require.NoError(t, store.Close())

	store, err = OpenPebbleChatRepo("chats", &pebble.Options{FS: fs})
	require.NoError(t, err)
	defer store.Close()
	chat := &models.Chat{RoomID: "1", UserID: "u", Message: `"c"`}
	require.NoError(t, store.CreateChat(ctx, chat))
	assert.Equal(t, uint64(3), chat.ID)

	history, err := store.GetRoomHistory(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, `"c"`, history[2].Message)
}

func TestCanceledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store, err := OpenPebbleChatRepo("chats", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer store.Close()
	err = store.CreateChat(ctx, &models.Chat{RoomID: "1", Message: "x"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestRoomRepos(t *testing.T) {
	repos := map[string]RoomRepoInterface{
		"memory": NewMemoryRoomRepository(),
		"gorm":   NewRoomRepository(openSQLite(t)),
	}
	for name, rooms := range repos {
		t.Run(name, func(t *testing.T) {
			id, err := rooms.CreateRoom(&models.Room{Slug: "design-review", AdminID: "u1"})
			require.NoError(t, err)
			assert.NotZero(t, id)
			_, err = rooms.CreateRoom(&models.Room{Slug: "standup", AdminID: "u2"})
			require.NoError(t, err)

			room, err := rooms.GetRoomBySlug("design-review")
			require.NoError(t, err)
			assert.Equal(t, id, room.ID)
			assert.Equal(t, "u1", room.AdminID)

			_, err = rooms.GetRoomBySlug("missing")
			assert.ErrorIs(t, err, ErrRoomNotFound)

			mine, err := rooms.GetRoomsByAdmin("u1")
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, "design-review", mine[0].Slug)
		})
	}
}

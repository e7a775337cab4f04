package memory

import (
	"path/filepath"
	"testing"

	"companion-server-go/internal/domain/chat/emotion"
	"companion-server-go/internal/platform/config"
	platformtest "companion-server-go/internal/platform/testing"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	logger := platformtest.SetupTestLogger(t)
	store, err := Open(config.MemoryConfig{
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		HistoryLimit: 5,
	}, logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AppendAndHistory(t *testing.T) {
	store := setupStore(t)

	messages := []struct {
		role    string
		content string
		emo     emotion.Label
	}{
		{"user", "こんにちは", emotion.Neutral},
		{"assistant", "こんにちは！元気だよ。", emotion.Happy},
		{"user", "今日は疲れた", emotion.Sad},
	}
	for _, m := range messages {
		if err := store.AppendMessage("s1", m.role, m.content, m.emo); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	// 其他会话的消息不应混入
	if err := store.AppendMessage("s2", "user", "別の会話", emotion.Neutral); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	history, err := store.History("s1", 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	// 时间正序：最老的在前
	if history[0].Content != "こんにちは！元気だよ。" || history[1].Content != "今日は疲れた" {
		t.Errorf("unexpected history order: %+v", history)
	}
	if history[0].Emotion != string(emotion.Happy) {
		t.Errorf("emotion not persisted: %s", history[0].Emotion)
	}
}

func TestStore_AppendEmptyContentIsNoop(t *testing.T) {
	store := setupStore(t)

	if err := store.AppendMessage("s1", "user", "", emotion.Neutral); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	history, err := store.History("s1", 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("empty message should not be stored, got %d rows", len(history))
	}
}

func TestStore_UserInfoUpsert(t *testing.T) {
	store := setupStore(t)

	if err := store.UpsertUserInfo("s1", "マスター", map[string]any{"lang": "ja"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.UpsertUserInfo("s1", "ご主人", map[string]any{"lang": "ja", "tone": "casual"}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	info, err := store.GetUserInfo("s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if info == nil || info.Name != "ご主人" {
		t.Errorf("upsert should overwrite, got %+v", info)
	}

	missing, err := store.GetUserInfo("unknown")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown session, got %+v", missing)
	}
}

func TestStore_Users(t *testing.T) {
	store := setupStore(t)

	user := &User{Username: "master", Email: "master@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected assigned id")
	}

	found, err := store.UserByUsername("master")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found == nil || found.ID != user.ID {
		t.Errorf("unexpected lookup result: %+v", found)
	}

	missing, err := store.UserByUsername("nobody")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown user, got %+v", missing)
	}

	if err := store.TouchLastLogin(user.ID); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	found, _ = store.UserByID(user.ID)
	if found.LastLogin == nil {
		t.Error("last login should be set")
	}
}

func TestStore_Characters(t *testing.T) {
	store := setupStore(t)

	user := &User{Username: "master", Email: "m@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(user); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	ch := &CustomCharacter{UserID: user.ID, Name: "カスタム", Prompt: "設定", VoiceID: "v1"}
	if err := store.CreateCharacter(ch); err != nil {
		t.Fatalf("create character failed: %v", err)
	}

	list, err := store.CharactersByUser(user.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "カスタム" {
		t.Errorf("unexpected list: %+v", list)
	}

	ch.Prompt = "新しい設定"
	if err := store.UpdateCharacter(ch); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ := store.CharacterByID(user.ID, ch.ID)
	if got == nil || got.Prompt != "新しい設定" {
		t.Errorf("update not persisted: %+v", got)
	}

	// 他人的角色不可见
	other, _ := store.CharacterByID(user.ID+1, ch.ID)
	if other != nil {
		t.Error("character should be scoped to its owner")
	}

	if err := store.DeleteCharacter(user.ID, ch.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	list, _ = store.CharactersByUser(user.ID)
	if len(list) != 0 {
		t.Errorf("expected empty list after delete, got %+v", list)
	}
}

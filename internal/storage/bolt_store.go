// internal/storage/bolt_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Corphon/PersonaChat/internal/models"
	bolt "go.etcd.io/bbolt"
)

const conversationBucket = "conversations"

// 持久化快照的最大轮数，限制单条记录的体积
const maxPersistedTurns = 200

// ConversationStore 用BoltDB持久化会话快照
// 进程重启后已有会话可以恢复，单个数据库文件内按bucket组织
type ConversationStore struct {
	db *bolt.DB
}

// OpenConversationStore 打开（或新建）会话数据库
func OpenConversationStore(dataDir string) (*ConversationStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	path := filepath.Join(dataDir, "conversations.bolt")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开会话数据库失败: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(conversationBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &ConversationStore{db: db}, nil
}

// Close 关闭底层数据库
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

// Save 写入会话快照，超出上限的最旧轮次被丢弃
func (s *ConversationStore) Save(record *models.ConversationRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("会话记录缺少ID")
	}

	snapshot := *record
	if len(snapshot.Messages) > maxPersistedTurns {
		snapshot.Messages = snapshot.Messages[len(snapshot.Messages)-maxPersistedTurns:]
	}
	snapshot.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(conversationBucket))
		enc, err := json.Marshal(&snapshot)
		if err != nil {
			return err
		}
		return b.Put([]byte(snapshot.ID), enc)
	})
}

// Load 读取会话快照，不存在时返回nil而不是错误
func (s *ConversationStore) Load(id string) (*models.ConversationRecord, error) {
	var record *models.ConversationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(conversationBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var r models.ConversationRecord
		if err := json.Unmarshal(data, &r); err != nil {
			// 跳过损坏的记录而不是让整个加载失败
			return nil
		}
		record = &r
		return nil
	})
	return record, err
}

// Delete 删除会话快照
func (s *ConversationStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(conversationBucket))
		return b.Delete([]byte(id))
	})
}

// ListIDs 返回所有已持久化的会话ID
func (s *ConversationStore) ListIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(conversationBucket))
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

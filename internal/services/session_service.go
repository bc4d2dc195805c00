// internal/services/session_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/PersonaChat/internal/models"
	"github.com/Corphon/PersonaChat/internal/storage"
	"github.com/Corphon/PersonaChat/internal/utils"
)

// SessionService 管理进行中的会话
// 会话状态以服务端为准：展示历史不设上限，
// 拼装提示词时只取最近的窗口（见History的limit参数）
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*models.ConversationRecord

	// store为nil时只保留内存状态（测试场景）
	store *storage.ConversationStore
}

// NewSessionService 创建会话管理服务
func NewSessionService(store *storage.ConversationStore) *SessionService {
	return &SessionService{
		sessions: make(map[string]*models.ConversationRecord),
		store:    store,
	}
}

// GetOrCreate 获取会话，不存在时先尝试从持久化存储恢复，再新建
// 传入的人格与当前会话不一致时清空历史（切换人格即重新开始）
func (s *SessionService) GetOrCreate(id, persona, culture string) *models.ConversationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists && s.store != nil {
		if restored, err := s.store.Load(id); err == nil && restored != nil {
			s.sessions[id] = restored
			session = restored
			exists = true
		}
	}

	if !exists {
		session = &models.ConversationRecord{
			ID:        id,
			Persona:   persona,
			Culture:   culture,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		s.sessions[id] = session
		return s.copyRecord(session)
	}

	if session.Persona != persona || session.Culture != culture {
		session.Persona = persona
		session.Culture = culture
		session.Messages = nil
		session.UpdatedAt = time.Now()
		s.persistLocked(session)
	}

	return s.copyRecord(session)
}

// PersonaCulture 返回会话当前绑定的人格与文化
func (s *SessionService) PersonaCulture(id string) (string, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return "", "", false
	}
	return session.Persona, session.Culture, true
}

// NewSessionID 生成新的会话标识
func (s *SessionService) NewSessionID() string {
	id, err := utils.NewSessionID()
	if err != nil {
		// 随机源不可用时退化为时间戳
		return time.Now().Format("20060102150405.000000000")
	}
	return id
}

// Append 向展示历史追加一条消息，时间戳保持单调递增
func (s *SessionService) Append(id, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return
	}

	now := time.Now()
	if n := len(session.Messages); n > 0 && !now.After(session.Messages[n-1].Timestamp) {
		now = session.Messages[n-1].Timestamp.Add(time.Nanosecond)
	}

	session.Messages = append(session.Messages, models.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	session.UpdatedAt = now
	s.persistLocked(session)
}

// History 返回最近limit条消息的副本，不修改底层历史
// limit<=0时返回完整展示历史
func (s *SessionService) History(id string, limit int) []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil
	}

	messages := session.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	result := make([]models.ChatMessage, len(messages))
	copy(result, messages)
	return result
}

// TurnCount 返回展示历史的长度
func (s *SessionService) TurnCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return 0
	}
	return len(session.Messages)
}

// Clear 清空会话历史，切换人格或用户显式清空时调用
func (s *SessionService) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return
	}

	session.Messages = nil
	session.UpdatedAt = time.Now()
	s.persistLocked(session)
}

// Remove 丢弃整个会话，包括持久化快照
func (s *SessionService) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	if s.store != nil {
		s.store.Delete(id)
	}
}

// PrepareRetry 定位最近一条用户消息用于重试
// 如果它后面跟着assistant回复，该回复被视为已取代并移除；
// 用户消息本身保留在历史中，由调用方重新走完整的请求流水线
// 没有用户消息时返回空串和false，调用方应静默跳过
func (s *SessionService) PrepareRetry(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return "", false
	}

	lastUser := -1
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Role == models.RoleUser {
			lastUser = i
			break
		}
	}
	if lastUser == -1 {
		return "", false
	}

	message := session.Messages[lastUser].Content

	if len(session.Messages) > lastUser+1 {
		session.Messages = session.Messages[:lastUser+1]
		session.UpdatedAt = time.Now()
		s.persistLocked(session)
	}

	return message, true
}

// persistLocked 写入持久化快照，调用方需持有写锁
func (s *SessionService) persistLocked(session *models.ConversationRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(session); err != nil {
		utils.GetLogger().Warn("持久化会话快照失败", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
}

// copyRecord 返回会话记录的深拷贝
func (s *SessionService) copyRecord(session *models.ConversationRecord) *models.ConversationRecord {
	copied := *session
	copied.Messages = make([]models.ChatMessage, len(session.Messages))
	copy(copied.Messages, session.Messages)
	return &copied
}

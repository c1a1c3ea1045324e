// Package session 实现会话级的对话记忆：模型上下文历史与展示用的聊天记忆。
package session

import (
	"strings"
	"sync"
	"time"

	"robo-chat-go/internal/model"
)

const (
	DefaultMaxHistoryLength = 50
	DefaultMaxChatMemory    = 100
	DefaultSystemPrompt     = "You are a helpful AI assistant."
)

// TurnObserver 在每次历史追加成功后被调用。
type TurnObserver interface {
	ObserveTurn(event model.TurnEvent)
}

// Options 配置单个会话的容量与人设提示。
type Options struct {
	SystemPrompt     string
	MaxHistoryLength int
	MaxChatMemory    int
	Observer         TurnObserver
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.SystemPrompt) == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	// 至少保留 system 轮次和一条最近消息
	if o.MaxHistoryLength < 2 {
		o.MaxHistoryLength = DefaultMaxHistoryLength
	}
	if o.MaxChatMemory < 1 {
		o.MaxChatMemory = DefaultMaxChatMemory
	}
	return o
}

// Store 持有一个会话的两份有界日志。
// history[0] 始终是初始化时写入的 system 轮次。
type Store struct {
	mu       sync.Mutex
	id       string
	opts     Options
	history  []model.ConversationTurn
	memory   []string
	tornDown bool
	now      func() time.Time
}

// New 创建会话并写入 system 轮次。
func New(id string, opts Options) *Store {
	s := &Store{
		id:   id,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
	s.Init()
	return s
}

// ID 返回会话标识。
func (s *Store) ID() string { return s.id }

// Init 重置两份日志，并以人设提示作为唯一的 system 轮次。
func (s *Store) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tornDown = false
	s.history = []model.ConversationTurn{{
		Role:      model.RoleSystem,
		Content:   s.opts.SystemPrompt,
		Timestamp: s.now(),
	}}
	s.memory = nil
}

// AddToHistory 追加一条对话轮次。角色非法或内容为空白时静默忽略。
// 超出上限时保留 system 轮次与最近的 MaxHistoryLength-1 条。
func (s *Store) AddToHistory(role model.Role, content string) {
	if !role.Valid() || strings.TrimSpace(content) == "" {
		return
	}

	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	turn := model.ConversationTurn{Role: role, Content: content, Timestamp: s.now()}
	s.history = append(s.history, turn)
	if max := s.opts.MaxHistoryLength; len(s.history) > max {
		kept := make([]model.ConversationTurn, 0, max)
		kept = append(kept, s.history[0])
		kept = append(kept, s.history[len(s.history)-(max-1):]...)
		s.history = kept
	}
	observer := s.opts.Observer
	s.mu.Unlock()

	if observer != nil {
		observer.ObserveTurn(model.TurnEvent{
			SessionID: s.id,
			Role:      turn.Role,
			Content:   turn.Content,
			Timestamp: turn.Timestamp,
		})
	}
}

// ConversationHistory 返回历史的独立副本。
func (s *Store) ConversationHistory() []model.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConversationTurn, len(s.history))
	copy(out, s.history)
	return out
}

// AddToMemory 追加一条用户记录，超出上限时淘汰最旧的一条。
func (s *Store) AddToMemory(entry string) {
	if strings.TrimSpace(entry) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return
	}
	s.memory = append(s.memory, entry)
	if len(s.memory) > s.opts.MaxChatMemory {
		s.memory = s.memory[1:]
	}
}

// ChatMemory 返回聊天记忆的独立副本。
func (s *Store) ChatMemory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.memory))
	copy(out, s.memory)
	return out
}

// ClearMemory 只清空聊天记忆，不影响历史。
func (s *Store) ClearMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = nil
}

// ClearHistory 丢弃 system 轮次之后的全部历史。
func (s *Store) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) > 1 {
		s.history = s.history[:1:1]
	}
}

// Reset 同时清空历史与聊天记忆。
func (s *Store) Reset() {
	s.ClearHistory()
	s.ClearMemory()
}

// Teardown 释放会话状态，之后的写入都被忽略。
func (s *Store) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tornDown = true
	s.history = nil
	s.memory = nil
}

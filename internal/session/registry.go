package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry 管理进程内的全部会话。
type Registry struct {
	mu       sync.RWMutex
	opts     Options
	sessions map[string]*Store
}

// NewRegistry 创建注册表，opts 作为每个新会话的配置。
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*Store),
	}
}

// Create 以随机 UUID 创建新会话。
func (r *Registry) Create() *Store {
	s := New(uuid.NewString(), r.opts)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get 按 ID 查找会话。
func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete 销毁并移除会话，返回会话是否存在。
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Teardown()
	}
	return ok
}

// Len 返回当前会话数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

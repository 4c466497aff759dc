package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"HibiscusGuard/internal/models"
	"HibiscusGuard/pkg/logger"

	"go.uber.org/zap"
)

// snapshot 降级存储的落盘格式：按集合名组织的单个JSON文档
// 每次变更整体重写；这个系统的写入规模下足够了
type snapshot struct {
	Version       int                              `json:"version"`
	Alerts        map[string]*models.Alert         `json:"alerts"`
	Contacts      map[string]*models.EmergencyContact `json:"contacts"`
	NotifyRecords []models.NotifyRecord            `json:"notify_records"`
	Actions       []models.AlertAction             `json:"actions"`
	NextSeq       uint                             `json:"next_seq"`
}

// MemoryStore 进程内降级存储；构造时加载快照，进程重启后在途数据可恢复
type MemoryStore struct {
	mu   sync.RWMutex
	path string
	data snapshot
}

func NewMemoryStore(snapshotPath string) *MemoryStore {
	m := &MemoryStore{
		path: snapshotPath,
		data: snapshot{
			Version:  1,
			Alerts:   make(map[string]*models.Alert),
			Contacts: make(map[string]*models.EmergencyContact),
			NextSeq:  1,
		},
	}
	m.load()
	return m
}

// load 启动时恢复快照；文件不存在是正常情况
func (m *MemoryStore) load() {
	buf, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("snapshot read failed", zap.String("path", m.path), zap.Error(err))
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(buf, &snap); err != nil {
		logger.Warn("snapshot parse failed, starting empty", zap.String("path", m.path), zap.Error(err))
		return
	}
	if snap.Alerts == nil {
		snap.Alerts = make(map[string]*models.Alert)
	}
	if snap.Contacts == nil {
		snap.Contacts = make(map[string]*models.EmergencyContact)
	}
	if snap.NextSeq == 0 {
		snap.NextSeq = 1
	}
	m.data = snap
	logger.Info("snapshot loaded",
		zap.String("path", m.path),
		zap.Int("alerts", len(snap.Alerts)),
		zap.Int("contacts", len(snap.Contacts)))
}

// persist 整体重写快照文件；持锁调用
func (m *MemoryStore) persist() {
	if m.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.path), os.ModePerm); err != nil {
		logger.Warn("snapshot dir create failed", zap.Error(err))
		return
	}
	buf, err := json.Marshal(m.data)
	if err != nil {
		logger.Warn("snapshot marshal failed", zap.Error(err))
		return
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		logger.Warn("snapshot write failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		logger.Warn("snapshot rename failed", zap.Error(err))
	}
}

func (m *MemoryStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.data.Alerts[alert.ID] = &cp
	m.persist()
	return nil
}

func (m *MemoryStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, ok := m.data.Alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

func (m *MemoryStore) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *alert
	m.data.Alerts[alert.ID] = &cp
	m.persist()
	return nil
}

func (m *MemoryStore) ListAlerts(ctx context.Context, ownerID string, includeResolved bool) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Alert, 0, len(m.data.Alerts))
	for _, a := range m.data.Alerts {
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		if !includeResolved && a.Resolved {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SaveContact(ctx context.Context, contact *models.EmergencyContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *contact
	m.data.Contacts[contact.ID] = &cp
	m.persist()
	return nil
}

func (m *MemoryStore) ListActiveContacts(ctx context.Context, ownerID string) ([]models.EmergencyContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EmergencyContact, 0)
	for _, c := range m.data.Contacts {
		if c.OwnerID == ownerID && c.Active {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SaveNotifyRecord(ctx context.Context, rec *models.NotifyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.data.NextSeq
	m.data.NextSeq++
	m.data.NotifyRecords = append(m.data.NotifyRecords, *rec)
	m.persist()
	return nil
}

func (m *MemoryStore) SaveAction(ctx context.Context, action *models.AlertAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	action.ID = m.data.NextSeq
	m.data.NextSeq++
	m.data.Actions = append(m.data.Actions, *action)
	m.persist()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist()
	return nil
}

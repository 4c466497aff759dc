package store

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"HibiscusGuard/internal/models"
	"HibiscusGuard/pkg/logger"
	"HibiscusGuard/pkg/metrics"

	"go.uber.org/zap"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Store 领域存储接口；门面只管可用性路由，不管领域语义
type Store interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, ownerID string, includeResolved bool) ([]models.Alert, error)

	SaveContact(ctx context.Context, contact *models.EmergencyContact) error
	ListActiveContacts(ctx context.Context, ownerID string) ([]models.EmergencyContact, error)

	SaveNotifyRecord(ctx context.Context, rec *models.NotifyRecord) error
	SaveAction(ctx context.Context, action *models.AlertAction) error

	Ping(ctx context.Context) error
	Close() error
}

// Resilient 主存储 + 内存降级的门面
// 主存储一旦出现不可恢复错误，进程余下生命周期全部走降级，不回切
type Resilient struct {
	primary  Store
	fallback *MemoryStore
	degraded atomic.Bool
}

// NewResilient 主存储传 nil 表示直接以降级态启动
func NewResilient(primary Store, fallback *MemoryStore) *Resilient {
	r := &Resilient{primary: primary, fallback: fallback}
	if primary == nil {
		r.degraded.Store(true)
		metrics.StorageDegraded.Set(1)
	}
	return r
}

// Degraded 当前是否处于降级态
func (r *Resilient) Degraded() bool { return r.degraded.Load() }

// isFailoverErr 判定需要降级的错误类别：连接打不通、驱动致命错误
// 业务性错误（没查到记录、约束冲突）不触发降级
func isFailoverErr(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"bad connection",
		"database is closed",
		"database is locked",
		"broken pipe",
		"i/o timeout",
		"unable to open database",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// backend 选择当前后端；首次降级时把事件记录下来
func (r *Resilient) backend() Store {
	if r.degraded.Load() {
		return r.fallback
	}
	return r.primary
}

// do 执行一次操作；主存储失败且属于降级类别时，切换并在降级后端重放
func (r *Resilient) do(op func(s Store) error) error {
	if r.degraded.Load() {
		return op(r.fallback)
	}
	err := op(r.primary)
	if err == nil || !isFailoverErr(err) {
		return err
	}
	if r.degraded.CompareAndSwap(false, true) {
		metrics.StorageDegraded.Set(1)
		logger.Error("primary storage failed, switching to in-memory fallback for process lifetime",
			zap.Error(err))
	}
	return op(r.fallback)
}

func (r *Resilient) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return r.do(func(s Store) error { return s.CreateAlert(ctx, alert) })
}

func (r *Resilient) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var out *models.Alert
	err := r.do(func(s Store) error {
		var e error
		out, e = s.GetAlert(ctx, id)
		return e
	})
	return out, err
}

func (r *Resilient) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return r.do(func(s Store) error { return s.UpdateAlert(ctx, alert) })
}

func (r *Resilient) ListAlerts(ctx context.Context, ownerID string, includeResolved bool) ([]models.Alert, error) {
	var out []models.Alert
	err := r.do(func(s Store) error {
		var e error
		out, e = s.ListAlerts(ctx, ownerID, includeResolved)
		return e
	})
	return out, err
}

func (r *Resilient) SaveContact(ctx context.Context, contact *models.EmergencyContact) error {
	return r.do(func(s Store) error { return s.SaveContact(ctx, contact) })
}

func (r *Resilient) ListActiveContacts(ctx context.Context, ownerID string) ([]models.EmergencyContact, error) {
	var out []models.EmergencyContact
	err := r.do(func(s Store) error {
		var e error
		out, e = s.ListActiveContacts(ctx, ownerID)
		return e
	})
	return out, err
}

func (r *Resilient) SaveNotifyRecord(ctx context.Context, rec *models.NotifyRecord) error {
	return r.do(func(s Store) error { return s.SaveNotifyRecord(ctx, rec) })
}

func (r *Resilient) SaveAction(ctx context.Context, action *models.AlertAction) error {
	return r.do(func(s Store) error { return s.SaveAction(ctx, action) })
}

func (r *Resilient) Ping(ctx context.Context) error {
	return r.backend().Ping(ctx)
}

func (r *Resilient) Close() error {
	if err := r.fallback.Close(); err != nil {
		logger.Warn("fallback store close", zap.Error(err))
	}
	if r.primary == nil {
		return nil
	}
	return r.primary.Close()
}

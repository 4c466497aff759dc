package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"HibiscusGuard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore 模拟主库断连的打桩实现
type failingStore struct {
	err error
}

func (f *failingStore) CreateAlert(ctx context.Context, alert *models.Alert) error { return f.err }
func (f *failingStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return nil, f.err
}
func (f *failingStore) UpdateAlert(ctx context.Context, alert *models.Alert) error { return f.err }
func (f *failingStore) ListAlerts(ctx context.Context, ownerID string, includeResolved bool) ([]models.Alert, error) {
	return nil, f.err
}
func (f *failingStore) SaveContact(ctx context.Context, contact *models.EmergencyContact) error {
	return f.err
}
func (f *failingStore) ListActiveContacts(ctx context.Context, ownerID string) ([]models.EmergencyContact, error) {
	return nil, f.err
}
func (f *failingStore) SaveNotifyRecord(ctx context.Context, rec *models.NotifyRecord) error {
	return f.err
}
func (f *failingStore) SaveAction(ctx context.Context, action *models.AlertAction) error {
	return f.err
}
func (f *failingStore) Ping(ctx context.Context) error { return f.err }
func (f *failingStore) Close() error                   { return nil }

func testAlert(id, owner string) *models.Alert {
	return &models.Alert{
		ID:          id,
		OwnerID:     owner,
		TriggerKind: models.TriggerManual,
		Status:      models.AlertStatusTriggered,
		Lat:         31.23,
		Lng:         121.47,
		CreatedAt:   time.Now(),
	}
}

func TestFailoverToMemory(t *testing.T) {
	ctx := context.Background()
	primary := &failingStore{err: errors.New("dial tcp 127.0.0.1:3306: connection refused")}
	fallback := NewMemoryStore("")
	r := NewResilient(primary, fallback)

	assert.False(t, r.Degraded())

	// 主库断连：写操作在降级后端重放成功
	err := r.CreateAlert(ctx, testAlert("a1", "user-1"))
	require.NoError(t, err)
	assert.True(t, r.Degraded())

	// 降级后读写全走内存
	got, err := r.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)

	alerts, err := r.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestBusinessErrorDoesNotFailover(t *testing.T) {
	ctx := context.Background()
	fallback := NewMemoryStore("")
	r := NewResilient(fallback, NewMemoryStore(""))

	// 没查到记录是业务错误，不触发降级
	_, err := r.GetAlert(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, r.Degraded())
}

func TestNilPrimaryStartsDegraded(t *testing.T) {
	r := NewResilient(nil, NewMemoryStore(""))
	assert.True(t, r.Degraded())

	err := r.CreateAlert(context.Background(), testAlert("a1", "user-1"))
	assert.NoError(t, err)
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	m1 := NewMemoryStore(path)
	require.NoError(t, m1.CreateAlert(ctx, testAlert("a1", "user-1")))
	require.NoError(t, m1.SaveContact(ctx, &models.EmergencyContact{
		ID: "c1", OwnerID: "user-1", Name: "Mom", Phone: "13800000000", Active: true,
	}))
	require.NoError(t, m1.SaveNotifyRecord(ctx, &models.NotifyRecord{
		AlertID: "a1", ContactID: "c1", Channel: "sms", Success: true, SentAt: time.Now(),
	}))

	// 模拟进程重启：同一路径构造新实例
	m2 := NewMemoryStore(path)
	got, err := m2.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusTriggered, got.Status)

	contacts, err := m2.ListActiveContacts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
	assert.Equal(t, "Mom", contacts[0].Name)
}

func TestMemoryStoreUpdateAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("")

	require.NoError(t, m.CreateAlert(ctx, testAlert("a1", "user-1")))
	require.NoError(t, m.CreateAlert(ctx, testAlert("a2", "user-1")))

	a1, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	now := time.Now()
	a1.Status = models.AlertStatusResolved
	a1.Resolved = true
	a1.ResolvedAt = &now
	require.NoError(t, m.UpdateAlert(ctx, a1))

	// 默认列表不含已解决的
	active, err := m.ListAlerts(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, "a2", active[0].ID)

	all, err := m.ListAlerts(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreInactiveContactFiltered(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("")

	require.NoError(t, m.SaveContact(ctx, &models.EmergencyContact{
		ID: "c1", OwnerID: "u1", Name: "A", Phone: "1", Active: true,
	}))
	require.NoError(t, m.SaveContact(ctx, &models.EmergencyContact{
		ID: "c2", OwnerID: "u1", Name: "B", Phone: "2", Active: false,
	}))

	contacts, err := m.ListActiveContacts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
	assert.Equal(t, "c1", contacts[0].ID)
}

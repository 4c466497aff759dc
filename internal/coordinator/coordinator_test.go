package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"HibiscusGuard/internal/dedupe"
	"HibiscusGuard/internal/matcher"
	"HibiscusGuard/internal/models"
	"HibiscusGuard/internal/relay"
	"HibiscusGuard/internal/store"
	"HibiscusGuard/pkg/cache"
	"HibiscusGuard/pkg/location"
	"HibiscusGuard/pkg/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender 记录发送调用的打桩渠道
type fakeSender struct {
	channel string
	err     error

	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return f.err
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	coord *Coordinator
	store *store.Resilient
	hub   *relay.Hub
}

func newTestEnv(t *testing.T, senders ...notification.Sender) *testEnv {
	t.Helper()
	st := store.NewResilient(store.NewMemoryStore(""), store.NewMemoryStore(""))
	dd := dedupe.New(cache.NewGoCache(cache.LocalConfig{
		DefaultExpiration: time.Minute,
		CleanupInterval:   time.Minute,
	}), time.Minute)
	hub := relay.NewHub(nil)
	loc := location.NewProvider("", 31.23, 121.47)
	m := matcher.New(matcher.DefaultConfig())
	deb := matcher.NewDebouncer(30 * time.Second)

	coord := New(Config{
		LocationRefreshInterval: time.Hour, // 测试里不要定时器干扰
		DedupeTTL:               time.Minute,
		SweepInterval:           time.Hour,
		StreamLinkBase:          "https://guard.test/watch",
	}, st, dd, hub, nil, senders, loc, m, deb)

	t.Cleanup(func() {
		coord.Stop()
		hub.Close()
		loc.Close()
	})
	return &testEnv{coord: coord, store: st, hub: hub}
}

func seedContacts(t *testing.T, env *testEnv, owner string) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []models.EmergencyContact{
		{ID: "c1", OwnerID: owner, Name: "Mom", Phone: "13800000001", Email: "mom@example.com", Active: true},
		{ID: "c2", OwnerID: owner, Name: "Dad", Phone: "13800000002", Email: "dad@example.com", Active: true},
		{ID: "c3", OwnerID: owner, Name: "Friend", Phone: "13800000003", Email: "friend@example.com", Active: true},
	} {
		c := c
		require.NoError(t, env.store.SaveContact(ctx, &c))
	}
}

func TestTriggerAlertReachesStreaming(t *testing.T) {
	sms := &fakeSender{channel: notification.ChannelSMS}
	env := newTestEnv(t, sms)
	seedContacts(t, env, "user-1")
	ctx := context.Background()

	alert, err := env.coord.TriggerAlert(ctx, "user-1", models.TriggerManual,
		&models.Location{Lat: 30.0, Lng: 120.0, Address: "West Lake"}, "", "")
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, models.AlertStatusStreaming, alert.Status)
	assert.Equal(t, 30.0, alert.Lat)
	assert.NotEmpty(t, alert.RoomID)
	assert.Equal(t, 1, env.hub.RoomCount())
	assert.Equal(t, 1, env.coord.ActiveSessions())

	// 通知是异步派发的
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, sms.sentCount())
}

func TestPartialChannelFailureStillNotifiesAll(t *testing.T) {
	sms := &fakeSender{channel: notification.ChannelSMS, err: errors.New("gateway unreachable")}
	mail := &fakeSender{channel: notification.ChannelMail}
	env := newTestEnv(t, sms, mail)
	seedContacts(t, env, "user-1")

	alert, err := env.coord.TriggerAlert(context.Background(), "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)

	// 短信渠道全挂也不影响会话推进和邮件渠道
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, models.AlertStatusStreaming, alert.Status)
	assert.Equal(t, 3, sms.sentCount())
	assert.Equal(t, 3, mail.sentCount())
}

func TestFallbackLocationUsedWhenNothingReported(t *testing.T) {
	env := newTestEnv(t)

	alert, err := env.coord.TriggerAlert(context.Background(), "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, 31.23, alert.Lat)
	assert.Equal(t, 121.47, alert.Lng)
}

func TestResolveAlertIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedContacts(t, env, "user-1")
	ctx := context.Background()

	alert, err := env.coord.TriggerAlert(ctx, "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)

	resolved, err := env.coord.ResolveAlert(ctx, alert.ID, "contact-1")
	require.NoError(t, err)
	require.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)
	firstResolvedAt := *resolved.ResolvedAt

	// 会话拆干净：房间关闭、刷新任务停止
	assert.Equal(t, 0, env.hub.RoomCount())
	assert.Equal(t, 0, env.coord.ActiveSessions())

	// 重复解除：成功返回且 resolvedAt 不变
	time.Sleep(10 * time.Millisecond)
	again, err := env.coord.ResolveAlert(ctx, alert.ID, "contact-2")
	require.NoError(t, err)
	assert.Equal(t, firstResolvedAt, *again.ResolvedAt)
	assert.Equal(t, "contact-1", again.ResolvedBy)
}

func TestResolveUnknownAlertIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	alert, err := env.coord.ResolveAlert(context.Background(), "no-such-alert", "someone")
	assert.NoError(t, err)
	assert.Nil(t, alert)
}

func TestVoiceTriggerWithDebounce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 未命中不升级
	alert, err := env.coord.HandleUtterance(ctx, "user-1", "listen-1", "nice weather today", nil, "")
	require.NoError(t, err)
	assert.Nil(t, alert)

	// 命中升级为语音触发的警报
	alert, err = env.coord.HandleUtterance(ctx, "user-1", "listen-1", "somebody help me", nil, "")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.TriggerVoice, alert.TriggerKind)

	// 同一监听会话窗口内的二次命中被防抖丢弃
	alert, err = env.coord.HandleUtterance(ctx, "user-1", "listen-1", "help help", nil, "")
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestConfirmEvidenceImmutableAfterResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alert, err := env.coord.TriggerAlert(ctx, "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)

	require.NoError(t, env.coord.ConfirmEvidence(ctx, alert.ID, "audio", "s3://a/clip1.ogg"))
	_, err = env.coord.ResolveAlert(ctx, alert.ID, "contact-1")
	require.NoError(t, err)

	// 解除后已填的槽位不可改，空槽位允许补录
	require.NoError(t, env.coord.ConfirmEvidence(ctx, alert.ID, "audio", "s3://a/clip2.ogg"))
	require.NoError(t, env.coord.ConfirmEvidence(ctx, alert.ID, "video", "s3://a/final.webm"))

	got, err := env.store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3://a/clip1.ogg", got.AudioRef)
	assert.Equal(t, "s3://a/final.webm", got.VideoRef)
}

func TestAbandonedWhenRoomCannotOpen(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Close() // 模拟中继不可用

	alert, err := env.coord.TriggerAlert(context.Background(), "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAbandoned, alert.Status)
	assert.True(t, alert.NeedFollowUp)
	assert.Equal(t, 0, env.coord.ActiveSessions())
}

func TestResolvedNotificationSentOnce(t *testing.T) {
	sms := &fakeSender{channel: notification.ChannelSMS}
	env := newTestEnv(t, sms)
	seedContacts(t, env, "user-1")
	ctx := context.Background()

	alert, err := env.coord.TriggerAlert(ctx, "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	triggered := sms.sentCount()
	assert.Equal(t, 3, triggered)

	_, err = env.coord.ResolveAlert(ctx, alert.ID, "contact-1")
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	// 解除通知走独立去重键，且只发一轮
	assert.Equal(t, triggered+3, sms.sentCount())
}

// slowUpdateStore 放慢 UpdateAlert，拉开并发操作的竞争窗口
type slowUpdateStore struct {
	store.Store
	delay time.Duration
}

func (s *slowUpdateStore) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	time.Sleep(s.delay)
	return s.Store.UpdateAlert(ctx, alert)
}

func TestConcurrentResolveKeepsFirstResolver(t *testing.T) {
	slow := &slowUpdateStore{Store: store.NewMemoryStore(""), delay: 50 * time.Millisecond}
	st := store.NewResilient(slow, store.NewMemoryStore(""))
	dd := dedupe.New(cache.NewGoCache(cache.LocalConfig{
		DefaultExpiration: time.Minute,
		CleanupInterval:   time.Minute,
	}), time.Minute)
	hub := relay.NewHub(nil)
	loc := location.NewProvider("", 31.23, 121.47)
	coord := New(Config{
		LocationRefreshInterval: time.Hour,
		DedupeTTL:               time.Minute,
		SweepInterval:           time.Hour,
		StreamLinkBase:          "https://guard.test/watch",
	}, st, dd, hub, nil, nil, loc, matcher.New(matcher.DefaultConfig()), matcher.NewDebouncer(30*time.Second))
	t.Cleanup(func() {
		coord.Stop()
		hub.Close()
		loc.Close()
	})

	ctx := context.Background()
	alert, err := coord.TriggerAlert(ctx, "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)

	// 两个有权限的人同时解除：只有先到的生效
	results := make([]*models.Alert, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = coord.ResolveAlert(ctx, alert.ID, "contact-1")
	}()
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		results[1], _ = coord.ResolveAlert(ctx, alert.ID, "contact-2")
	}()
	wg.Wait()

	stored, err := st.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "contact-1", stored.ResolvedBy)
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	require.NotNil(t, results[0].ResolvedAt)
	require.NotNil(t, results[1].ResolvedAt)
	assert.Equal(t, *results[0].ResolvedAt, *results[1].ResolvedAt)
	assert.Equal(t, "contact-1", results[1].ResolvedBy)

	// 解除后的位置刷新是空操作，不会把状态盖回去
	coord.refreshLocation(ctx, alert.ID)
	stored, err = st.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)
}

// slowChannelSender 模拟慢渠道：在途期间上下文被取消则按失败返回
type slowChannelSender struct {
	fakeSender
	delay time.Duration
}

func (s *slowChannelSender) Send(ctx context.Context, to, subject, body string) error {
	time.Sleep(s.delay)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fakeSender.Send(ctx, to, subject, body)
}

func TestResolveLetsInFlightNotificationsComplete(t *testing.T) {
	sms := &slowChannelSender{fakeSender: fakeSender{channel: notification.ChannelSMS}, delay: 80 * time.Millisecond}
	env := newTestEnv(t, sms)
	seedContacts(t, env, "user-1")
	ctx := context.Background()

	alert, err := env.coord.TriggerAlert(ctx, "user-1", models.TriggerManual, nil, "", "")
	require.NoError(t, err)

	// 求救通知还在途时就解除
	time.Sleep(30 * time.Millisecond)
	_, err = env.coord.ResolveAlert(ctx, alert.ID, "contact-1")
	require.NoError(t, err)
	time.Sleep(250 * time.Millisecond)

	// 3 条在途的求救通知照常送达，再加 3 条解除通知
	assert.Equal(t, 6, sms.sentCount())
}

package coordinator

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"HibiscusGuard/internal/dedupe"
	"HibiscusGuard/internal/matcher"
	"HibiscusGuard/internal/models"
	"HibiscusGuard/internal/relay"
	"HibiscusGuard/internal/store"
	"HibiscusGuard/pkg/location"
	"HibiscusGuard/pkg/logger"
	"HibiscusGuard/pkg/metrics"
	"HibiscusGuard/pkg/notification"
	"HibiscusGuard/pkg/scheduler"
	"HibiscusGuard/pkg/sse"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config 协调器配置
type Config struct {
	LocationRefreshInterval time.Duration // 默认 15s
	DedupeTTL               time.Duration
	SweepInterval           time.Duration
	StreamLinkBase          string
}

// session 一次进行中的紧急会话的运行态
type session struct {
	alertID string
	roomID  string
	refresh *scheduler.Task
	cancel  context.CancelFunc // 取消尚未派发的通知
}

// Coordinator 紧急会话协调器
// 单个警报内 Triggered→Notifying→Streaming 串行推进；跨警报自由交错
type Coordinator struct {
	cfg     Config
	store   *store.Resilient
	dedupe  *dedupe.Deduplicator
	hub     *relay.Hub
	events  *sse.Hub // 可为 nil，推送则静默跳过
	senders []notification.Sender
	loc     *location.Provider
	match   *matcher.Matcher
	deb     *matcher.Debouncer
	sched   *scheduler.Scheduler

	mu       sync.Mutex
	sessions map[string]*session // alertID -> session

	// 同一警报上的 读-检查-改-写 必须串行；跨警报自由交错，分片锁足够
	alertMu [64]sync.Mutex
}

// lockAlert 取警报对应的分片锁；解除、取证、位置刷新共用同一把
func (c *Coordinator) lockAlert(alertID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(alertID))
	return &c.alertMu[h.Sum32()%uint32(len(c.alertMu))]
}

func New(cfg Config, st *store.Resilient, dd *dedupe.Deduplicator, hub *relay.Hub, events *sse.Hub,
	senders []notification.Sender, loc *location.Provider, m *matcher.Matcher, deb *matcher.Debouncer) *Coordinator {

	if cfg.LocationRefreshInterval <= 0 {
		cfg.LocationRefreshInterval = 15 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	c := &Coordinator{
		cfg:      cfg,
		store:    st,
		dedupe:   dd,
		hub:      hub,
		events:   events,
		senders:  senders,
		loc:      loc,
		match:    m,
		deb:      deb,
		sched:    scheduler.New(),
		sessions: make(map[string]*session),
	}

	// 固定间隔的清扫：去重账本、防抖记录、无活动房间
	c.sched.Every(cfg.SweepInterval, scheduler.FuncJob(func(ctx context.Context) {
		c.dedupe.Sweep(ctx)
		c.deb.Sweep(time.Now())
		c.hub.SweepIdleRooms()
	}))

	return c
}

// TriggerAlert 触发一次紧急会话：建警报、扇出通知、开中继房间
// 通知失败从不致命；所有渠道全挂也照常进入 Streaming
func (c *Coordinator) TriggerAlert(ctx context.Context, ownerID string, kind models.TriggerKind,
	reported *models.Location, clientIP, evidenceRef string) (*models.Alert, error) {

	if !kind.Valid() {
		kind = models.TriggerManual
	}

	// Triggered：落一条警报，位置用上报值，缺了走兜底链
	fix := c.bestLocation(ownerID, reported, clientIP)
	now := time.Now()
	alert := &models.Alert{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		TriggerKind: kind,
		Status:      models.AlertStatusTriggered,
		Lat:         fix.Lat,
		Lng:         fix.Lng,
		Address:     fix.Address,
		AudioRef:    evidenceRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.CreateAlert(ctx, alert); err != nil {
		// 两级存储都写不进去才会走到这里
		return nil, err
	}
	metrics.AlertsTriggered.WithLabelValues(string(kind)).Inc()
	logger.Info("alert triggered",
		zap.String("alert", alert.ID),
		zap.String("owner", ownerID),
		zap.String("kind", string(kind)))

	// Streaming 的前置：开房失败属于不可恢复，转 Abandoned
	roomID := uuid.NewString()
	if room := c.hub.OpenRoom(roomID, alert.ID); room == nil {
		c.markAbandoned(ctx, alert, "relay room creation failed")
		return alert, nil
	}
	alert.RoomID = roomID

	// Notifying：派发是异步的，不阻塞会话推进
	alert.Status = models.AlertStatusNotifying
	alert.UpdatedAt = time.Now()
	_ = c.store.UpdateAlert(ctx, alert)

	sessCtx, cancel := context.WithCancel(context.Background())
	go c.notifyContacts(sessCtx, alert.ID, alert.OwnerID, *alert, "")

	// Streaming：位置刷新定时任务挂到会话上，解除时确定性拆掉
	alert.Status = models.AlertStatusStreaming
	alert.UpdatedAt = time.Now()
	_ = c.store.UpdateAlert(ctx, alert)

	refresh := c.sched.Every(c.cfg.LocationRefreshInterval, scheduler.FuncJob(func(jctx context.Context) {
		c.refreshLocation(jctx, alert.ID)
	}))
	c.publish(alert.ID, "status", map[string]string{"status": alert.Status})

	c.mu.Lock()
	c.sessions[alert.ID] = &session{alertID: alert.ID, roomID: roomID, refresh: refresh, cancel: cancel}
	c.mu.Unlock()

	return alert, nil
}

// HandleUtterance 语音触发入口：匹配 + 防抖，命中才升级为警报
// 未命中或被防抖丢弃时返回 (nil, nil)
func (c *Coordinator) HandleUtterance(ctx context.Context, ownerID, listenSession, utterance string,
	alternatives []string, clientIP string) (*models.Alert, error) {

	match, ok := c.match.Evaluate(utterance, alternatives)
	if !ok {
		return nil, nil
	}
	if !c.deb.Allow(listenSession, match.Timestamp) {
		logger.Info("distress match debounced",
			zap.String("owner", ownerID),
			zap.String("keyword", match.MatchedKeyword),
			zap.Float64("similarity", match.Similarity))
		return nil, nil
	}
	logger.Info("distress keyword matched",
		zap.String("owner", ownerID),
		zap.String("keyword", match.MatchedKeyword),
		zap.Float64("similarity", match.Similarity))
	return c.TriggerAlert(ctx, ownerID, models.TriggerVoice, nil, clientIP, "")
}

// ResolveAlert 解除警报；幂等，重复解除和解除不存在的警报都按成功处理
// 并发解除只有先到的生效，后到的拿到已解除的记录
func (c *Coordinator) ResolveAlert(ctx context.Context, alertID, resolvedBy string) (*models.Alert, error) {
	mu := c.lockAlert(alertID)
	mu.Lock()
	defer mu.Unlock()

	alert, err := c.store.GetAlert(ctx, alertID)
	if err != nil {
		if err == store.ErrNotFound {
			// 可用性优先：对求救系统来说 resolve 永远不该对调用方失败
			logger.Warn("resolve of unknown alert treated as no-op", zap.String("alert", alertID))
			return nil, nil
		}
		return nil, err
	}
	if alert.Resolved {
		return alert, nil
	}

	// 拆会话：停位置刷新、取消未派发的通知
	c.mu.Lock()
	sess := c.sessions[alertID]
	delete(c.sessions, alertID)
	c.mu.Unlock()
	if sess != nil {
		sess.refresh.Stop()
		sess.cancel()
	}

	// 收尾取证：先让设备收到上传指令再拆房
	if alert.RoomID != "" {
		c.hub.SendToDevice(alert.RoomID, "finalize-evidence", map[string]string{"alertId": alert.ID})
		c.hub.CloseRoom(alert.RoomID, "alert resolved")
	}

	now := time.Now()
	alert.Resolved = true
	alert.ResolvedBy = resolvedBy
	alert.ResolvedAt = &now
	alert.Status = models.AlertStatusResolved
	alert.UpdatedAt = now
	if err := c.store.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}
	_ = c.store.SaveAction(ctx, &models.AlertAction{
		AlertID:    alert.ID,
		ActorID:    resolvedBy,
		Action:     "resolve",
		Detail:     "response time " + alert.ResponseTime().Round(time.Second).String(),
		ActionTime: now,
	})
	metrics.AlertsResolved.Inc()
	logger.Info("alert resolved",
		zap.String("alert", alert.ID),
		zap.String("by", resolvedBy),
		zap.Duration("response_time", alert.ResponseTime()))

	c.publish(alert.ID, "resolved", map[string]string{"resolvedBy": resolvedBy})

	// 一次性解除通知，去重键带上事件后缀
	go c.notifyContacts(context.Background(), alert.ID+"/resolved", alert.OwnerID, *alert, "resolved")

	return alert, nil
}

// ConfirmEvidence 登记证据引用；解除后的引用不可变，只允许补空位
func (c *Coordinator) ConfirmEvidence(ctx context.Context, alertID, kind, ref string) error {
	mu := c.lockAlert(alertID)
	mu.Lock()
	defer mu.Unlock()

	alert, err := c.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	switch kind {
	case "audio":
		if alert.Resolved && alert.AudioRef != "" {
			return nil
		}
		alert.AudioRef = ref
	case "video":
		if alert.Resolved && alert.VideoRef != "" {
			return nil
		}
		alert.VideoRef = ref
	default:
		return store.ErrNotFound
	}
	alert.UpdatedAt = time.Now()
	if err := c.store.UpdateAlert(ctx, alert); err != nil {
		return err
	}
	return c.store.SaveAction(ctx, &models.AlertAction{
		AlertID:    alertID,
		Action:     "evidence_upload",
		Detail:     kind + " " + ref,
		ActionTime: time.Now(),
	})
}

// ActiveSessions 进行中的会话数
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Stop 停掉所有调度任务
func (c *Coordinator) Stop() {
	c.mu.Lock()
	for _, s := range c.sessions {
		s.refresh.Stop()
		s.cancel()
	}
	c.sessions = make(map[string]*session)
	c.mu.Unlock()
	c.sched.Stop()
}

// notifyContacts 对每个活跃联系人扇出通知
// 单个联系人的消息只组装一次；各渠道独立并发尝试，失败互不拖累
func (c *Coordinator) notifyContacts(ctx context.Context, dedupeScope, ownerID string, alert models.Alert, event string) {
	contacts, err := c.store.ListActiveContacts(ctx, ownerID)
	if err != nil {
		logger.Error("list contacts failed, notifications skipped", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, contact := range contacts {
		contact := contact

		var msg IncidentMessage
		if event == "resolved" {
			msg = composeResolvedMessage(&alert)
		} else {
			msg = composeIncidentMessage(&alert, contact.Name, c.streamLink(alert.RoomID))
		}

		for _, sender := range c.senders {
			sender := sender
			to := contact.AddressFor(sender.Channel())
			if to == "" {
				continue
			}

			key := dedupe.Key{AlertID: dedupeScope, ContactID: contact.ID, Channel: sender.Channel()}
			if !c.dedupe.Claim(ctx, key, c.cfg.DedupeTTL) {
				metrics.NotificationsDeduped.Inc()
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				if ctx.Err() != nil {
					// 会话已解除，未派发的不再发
					return
				}
				// 已派发的调用允许跑完，结果只记日志，不被解除打断
				err := sender.Send(context.WithoutCancel(ctx), to, msg.Subject, msg.Body)
				rec := &models.NotifyRecord{
					AlertID:   alert.ID,
					ContactID: contact.ID,
					Channel:   sender.Channel(),
					Success:   err == nil,
					SentAt:    time.Now(),
				}
				if err != nil {
					rec.Error = err.Error()
					metrics.NotificationsFailed.WithLabelValues(sender.Channel()).Inc()
					// 部分失败不展示给求救者，只留给运维看
					logger.Warn("notification channel failed",
						zap.String("alert", alert.ID),
						zap.String("contact", contact.ID),
						zap.String("channel", sender.Channel()),
						zap.Error(err))
				} else {
					metrics.NotificationsSent.WithLabelValues(sender.Channel()).Inc()
				}
				_ = c.store.SaveNotifyRecord(context.Background(), rec)
			}()
		}
	}
	wg.Wait()
}

// refreshLocation 周期性刷新位置：更新警报记录并推给房间内观看端
// 持警报锁，避免慢写把已解除的记录又盖回去
func (c *Coordinator) refreshLocation(ctx context.Context, alertID string) {
	mu := c.lockAlert(alertID)
	mu.Lock()
	defer mu.Unlock()

	alert, err := c.store.GetAlert(ctx, alertID)
	if err != nil || alert.Resolved {
		return
	}
	fix := c.loc.Current(alert.OwnerID, "")
	alert.Lat = fix.Lat
	alert.Lng = fix.Lng
	if fix.Address != "" {
		alert.Address = fix.Address
	}
	alert.UpdatedAt = time.Now()
	_ = c.store.UpdateAlert(ctx, alert)
	c.hub.BroadcastToRoom(alert.RoomID, relay.MessageTypeLocation, fix)
	c.publish(alert.ID, "location", fix)
}

// markAbandoned 不可恢复失败的安全阀：标记等待人工跟进，绝不静默
func (c *Coordinator) markAbandoned(ctx context.Context, alert *models.Alert, reason string) {
	alert.Status = models.AlertStatusAbandoned
	alert.NeedFollowUp = true
	alert.UpdatedAt = time.Now()
	_ = c.store.UpdateAlert(ctx, alert)
	c.publish(alert.ID, "status", map[string]string{"status": alert.Status})
	metrics.AlertsAbandoned.Inc()
	logger.Error("alert abandoned, manual follow-up required",
		zap.String("alert", alert.ID),
		zap.String("reason", reason))
}

func (c *Coordinator) bestLocation(ownerID string, reported *models.Location, clientIP string) location.Fix {
	if reported != nil {
		return location.Fix{Lat: reported.Lat, Lng: reported.Lng, Address: reported.Address, Timestamp: time.Now()}
	}
	return c.loc.Current(ownerID, clientIP)
}

func (c *Coordinator) publish(alertID, evType string, data interface{}) {
	if c.events == nil {
		return
	}
	c.events.Publish(alertID, sse.Event{Type: evType, AlertID: alertID, Data: data})
}

func (c *Coordinator) streamLink(roomID string) string {
	if roomID == "" {
		return c.cfg.StreamLinkBase
	}
	return c.cfg.StreamLinkBase + "/" + roomID
}

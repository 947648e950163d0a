package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PaykiPlatform/pkg/config"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/pkg/metrics"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

const signOutScope = "global"

// Options параметры синхронизатора
type Options struct {
	SessionTimeout   time.Duration
	ProfileTimeout   time.Duration
	SnapshotTTL      time.Duration
	OnlineRetryDelay time.Duration
	LoginPath        string
	Now              func() time.Time
}

// DefaultOptions возвращает значения по умолчанию
func DefaultOptions() Options {
	return Options{
		SessionTimeout:   4 * time.Second,
		ProfileTimeout:   3500 * time.Millisecond,
		SnapshotTTL:      12 * time.Hour,
		OnlineRetryDelay: 1500 * time.Millisecond,
		LoginPath:        "/login",
		Now:              time.Now,
	}
}

// OptionsFromConfig строит Options из секции session
func OptionsFromConfig(cfg config.SessionConfig) Options {
	opts := DefaultOptions()
	opts.SessionTimeout = config.Duration(cfg.SessionTimeout, opts.SessionTimeout)
	opts.ProfileTimeout = config.Duration(cfg.ProfileTimeout, opts.ProfileTimeout)
	opts.SnapshotTTL = config.Duration(cfg.SnapshotTTL, opts.SnapshotTTL)
	opts.OnlineRetryDelay = config.Duration(cfg.OnlineRetryDelay, opts.OnlineRetryDelay)
	if cfg.LoginPath != "" {
		opts.LoginPath = cfg.LoginPath
	}
	return opts
}

// Dependencies внешние зависимости синхронизатора.
// PushSubscriptions, Cache, Navigator и Metrics необязательны.
type Dependencies struct {
	Identity          IdentityProvider
	Profiles          repository.ProfileRepository
	Snapshots         repository.SnapshotRepository
	PushSubscriptions repository.PushSubscriptionRepository
	Cache             CacheClearer
	Navigator         Navigator
	Logger            logger.Logger
	Metrics           *metrics.Metrics
}

// Synchronizer единственный источник правды о текущем пользователе и его профиле.
//
// Каждая операция разрешения профиля получает номер поколения при старте;
// публикация отбрасывается, если начато более новое разрешение, выполнен выход
// или сменился пользователь. После Close публикации не выполняются.
type Synchronizer struct {
	identity  IdentityProvider
	profiles  repository.ProfileRepository
	snapshots repository.SnapshotRepository
	pushSubs  repository.PushSubscriptionRepository
	cache     CacheClearer
	navigator Navigator
	logger    logger.Logger
	metrics   *metrics.Metrics
	opts      Options

	mu           sync.RWMutex
	state        domain.State
	bootstrapped bool

	subMu       sync.Mutex
	subscribers map[uint64]func(domain.State)
	nextSubID   uint64

	generation atomic.Uint64
	alive      atomic.Bool

	unsubscribe func()
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewSynchronizer создает синхронизатор
func NewSynchronizer(deps Dependencies, opts Options) *Synchronizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		identity:    deps.Identity,
		profiles:    deps.Profiles,
		snapshots:   deps.Snapshots,
		pushSubs:    deps.PushSubscriptions,
		cache:       deps.Cache,
		navigator:   deps.Navigator,
		logger:      log,
		metrics:     deps.Metrics,
		opts:        opts,
		state:       domain.State{Online: true},
		subscribers: make(map[uint64]func(domain.State)),
		baseCtx:     baseCtx,
		cancel:      cancel,
	}
	s.alive.Store(true)
	return s
}

// Start подписывается на изменения сессии и выполняет первичную загрузку
func (s *Synchronizer) Start(ctx context.Context) {
	s.unsubscribe = s.identity.OnSessionChange(func(event domain.AuthEvent, session *domain.Session) {
		s.goAsync(func(ctx context.Context) {
			s.HandleSessionChange(ctx, event, session)
		})
	})
	s.Bootstrap(ctx)
}

// Close останавливает синхронизатор: после него состояние не меняется
func (s *Synchronizer) Close() {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

// Wait ждет завершения фоновых операций
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// State возвращает копию текущего состояния
func (s *Synchronizer) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe регистрирует fn, которая вызывается после каждой публикации
func (s *Synchronizer) Subscribe(fn func(domain.State)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// Bootstrap устанавливает личность из сохраненной сессии и разрешает профиль.
// loading выставляется только при первом вызове.
func (s *Synchronizer) Bootstrap(ctx context.Context) {
	s.mu.Lock()
	first := !s.bootstrapped
	s.bootstrapped = true
	s.mu.Unlock()

	gen := s.generation.Add(1)
	s.publish(gen, "", func(st *domain.State) {
		if first {
			st.Loading = true
		}
		st.Error = ""
		st.ErrorClass = domain.ErrorClassNone
	})
	defer s.update(func(st *domain.State) { st.Loading = false })

	session, err := WithTimeout(ctx, s.opts.SessionTimeout, s.identity.GetSession)
	if err != nil {
		s.logger.Warn("Failed to read session", logger.Error(err))
		s.publishFailure(gen, "", err)
		return
	}

	if session == nil || session.UserID == "" {
		s.publish(gen, "", func(st *domain.State) {
			st.UserID = ""
			st.Email = ""
			st.Profile = nil
			st.Syncing = false
		})
		return
	}

	uid, email := session.UserID, session.Email
	s.publish(gen, "", func(st *domain.State) {
		st.UserID = uid
		st.Email = email
	})

	snap := s.freshSnapshot(ctx, uid)
	if snap != nil {
		s.publish(gen, uid, func(st *domain.State) {
			st.Profile = snap.Profile.Clone()
			st.Loading = false
		})
		s.resolve(ctx, gen, uid, email, true)
		return
	}

	s.resolve(ctx, gen, uid, email, !first)
}

// RefreshProfile повторно разрешает профиль текущего пользователя в фоне
func (s *Synchronizer) RefreshProfile(ctx context.Context) {
	current := s.State()
	if current.UserID == "" {
		return
	}
	uid := current.UserID

	gen := s.generation.Add(1)
	s.publish(gen, uid, func(st *domain.State) { st.Syncing = true })

	session, err := WithTimeout(ctx, s.opts.SessionTimeout, s.identity.GetSession)
	if err != nil {
		s.logger.Warn("Failed to refresh session", logger.String("user_id", uid), logger.Error(err))
		s.publishFailure(gen, uid, err)
		return
	}

	email := current.Email
	if session != nil && session.Email != "" {
		email = session.Email
	}
	s.resolve(ctx, gen, uid, email, true)
}

// SignOut завершает сессию на всех устройствах и очищает локальное состояние.
// Ошибки удаленных вызовов только логируются.
func (s *Synchronizer) SignOut(ctx context.Context) {
	s.generation.Add(1)
	uid := s.State().UserID

	if uid != "" && s.pushSubs != nil {
		_, err := WithTimeout(ctx, s.opts.SessionTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.pushSubs.DeleteByUserID(ctx, uid)
		})
		if err != nil {
			s.logger.Warn("Failed to delete push subscriptions", logger.String("user_id", uid), logger.Error(err))
		}
	}

	_, err := WithTimeout(ctx, s.opts.SessionTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.identity.SignOut(ctx, signOutScope)
	})
	if err != nil {
		s.logger.Warn("Remote sign out failed", logger.Error(err))
	}

	s.update(func(st *domain.State) {
		st.UserID = ""
		st.Email = ""
		st.Profile = nil
		st.Error = ""
		st.ErrorClass = domain.ErrorClassNone
		st.Syncing = false
		st.Loading = false
	})

	if uid != "" && s.snapshots != nil {
		if err := s.snapshots.Invalidate(ctx, uid); err != nil {
			s.logger.Warn("Failed to invalidate profile snapshot", logger.String("user_id", uid), logger.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.ClearAll(ctx); err != nil {
			s.logger.Warn("Failed to clear cache storage", logger.Error(err))
		}
	}
	if s.navigator != nil {
		s.navigator.Navigate(s.opts.LoginPath)
	}

	s.logger.Info("Signed out", logger.String("user_id", uid))
}

// HandleSessionChange обрабатывает событие провайдера идентификации
func (s *Synchronizer) HandleSessionChange(ctx context.Context, event domain.AuthEvent, session *domain.Session) {
	if event == domain.EventTokenRefreshed {
		return
	}

	gen := s.generation.Add(1)

	if event == domain.EventSignedOut || session == nil || session.UserID == "" {
		s.update(func(st *domain.State) {
			st.UserID = ""
			st.Email = ""
			st.Profile = nil
			st.Error = ""
			st.ErrorClass = domain.ErrorClassNone
			st.Syncing = false
		})
		return
	}

	uid, email := session.UserID, session.Email
	s.publish(gen, "", func(st *domain.State) {
		if st.UserID != uid {
			st.Profile = nil
		}
		st.UserID = uid
		st.Email = email
		st.Error = ""
		st.ErrorClass = domain.ErrorClassNone
	})

	if snap := s.freshSnapshot(ctx, uid); snap != nil {
		s.publish(gen, uid, func(st *domain.State) { st.Profile = snap.Profile.Clone() })
	}

	s.resolve(ctx, gen, uid, email, true)
}

// Ping поддерживает сессию живой; ошибки игнорируются
func (s *Synchronizer) Ping(ctx context.Context) {
	if s.State().UserID == "" {
		return
	}
	if _, err := WithTimeout(ctx, s.opts.SessionTimeout, s.identity.GetSession); err != nil {
		s.logger.Debug("Session heartbeat failed", logger.Error(err))
	}
}

// Visible вызывается, когда клиент снова на переднем плане
func (s *Synchronizer) Visible(ctx context.Context) {
	s.Ping(ctx)
}

// Online отмечает восстановление связи. Если до этого связи не было,
// через OnlineRetryDelay запускается RefreshProfile.
func (s *Synchronizer) Online() {
	var wasOffline bool
	var uid string
	s.update(func(st *domain.State) {
		wasOffline = !st.Online
		uid = st.UserID
		st.Online = true
	})
	if !wasOffline || uid == "" {
		return
	}

	s.logger.Info("Connectivity restored", logger.Duration("retry_delay", s.opts.OnlineRetryDelay))
	s.goAsync(func(ctx context.Context) {
		timer := time.NewTimer(s.opts.OnlineRetryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.RefreshProfile(ctx)
	})
}

// Offline отмечает потерю связи
func (s *Synchronizer) Offline() {
	s.update(func(st *domain.State) { st.Online = false })
}

// resolve загружает профиль, при отсутствии создает его через ensure_profile
// и сохраняет снимок. При сетевом сбое или таймауте откатывается на свежий снимок.
func (s *Synchronizer) resolve(ctx context.Context, gen uint64, uid, email string, background bool) {
	mode := "initial"
	if background {
		mode = "background"
	}

	s.publish(gen, uid, func(st *domain.State) {
		st.Error = ""
		st.ErrorClass = domain.ErrorClassNone
		if background {
			st.Syncing = true
		}
	})

	snap := s.loadSnapshot(ctx, uid)

	profile, err := s.fetchOrEnsure(ctx, uid, email)
	if err == nil {
		if profile != nil && s.current(gen, uid) {
			s.saveSnapshot(ctx, profile)
		}
		s.publish(gen, uid, func(st *domain.State) {
			st.Profile = profile.Clone()
			st.Syncing = false
		})
		outcome := "resolved"
		if profile == nil {
			outcome = "empty"
		}
		s.metrics.ObserveProfileResolution(mode, outcome)
		return
	}

	class := Classify(err, s.isOnline())
	if Recoverable(class) && snap.IsFresh(s.opts.Now(), s.opts.SnapshotTTL) {
		s.logger.Warn("Profile resolution failed, using snapshot",
			logger.String("user_id", uid),
			logger.String("class", string(class)),
			logger.Error(err))
		s.publish(gen, uid, func(st *domain.State) {
			st.Profile = snap.Profile.Clone()
			st.Syncing = false
		})
		s.metrics.ObserveProfileResolution(mode, "snapshot")
		return
	}

	s.logger.Warn("Profile resolution failed",
		logger.String("user_id", uid),
		logger.String("class", string(class)),
		logger.Error(err))
	s.publish(gen, uid, func(st *domain.State) {
		st.Profile = nil
		st.Error = Message(class, err)
		st.ErrorClass = class
		st.Syncing = false
	})
	s.metrics.ObserveProfileResolution(mode, string(class))
}

func (s *Synchronizer) fetchOrEnsure(ctx context.Context, uid, email string) (*domain.Profile, error) {
	getByID := func(ctx context.Context) (*domain.Profile, error) {
		return s.profiles.GetByID(ctx, uid)
	}

	profile, err := WithTimeout(ctx, s.opts.ProfileTimeout, getByID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	ensured, err := WithTimeout(ctx, s.opts.ProfileTimeout, func(ctx context.Context) (*domain.Profile, error) {
		return s.profiles.EnsureProfile(ctx, uid, email)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Profile provisioned", logger.String("user_id", uid))

	again, err := WithTimeout(ctx, s.opts.ProfileTimeout, getByID)
	if err != nil {
		if ensured == nil {
			return nil, err
		}
		s.logger.Warn("Failed to re-read provisioned profile", logger.String("user_id", uid), logger.Error(err))
	}
	if again != nil {
		return again, nil
	}
	return ensured, nil
}

func (s *Synchronizer) loadSnapshot(ctx context.Context, uid string) *domain.Snapshot {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Load(ctx, uid)
	if err != nil {
		s.logger.Warn("Failed to load profile snapshot", logger.String("user_id", uid), logger.Error(err))
		return nil
	}
	if snap == nil || snap.Profile == nil {
		return nil
	}
	return snap
}

// freshSnapshot возвращает снимок, только если он не устарел.
// Снимок после SignOut всегда устаревший.
func (s *Synchronizer) freshSnapshot(ctx context.Context, uid string) *domain.Snapshot {
	snap := s.loadSnapshot(ctx, uid)
	if !snap.IsFresh(s.opts.Now(), s.opts.SnapshotTTL) {
		return nil
	}
	return snap
}

func (s *Synchronizer) saveSnapshot(ctx context.Context, profile *domain.Profile) {
	if s.snapshots == nil {
		return
	}
	snap := &domain.Snapshot{Profile: profile.Clone(), CapturedAt: s.opts.Now()}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.logger.Warn("Failed to save profile snapshot", logger.String("user_id", profile.ID), logger.Error(err))
	}
}

// publishFailure публикует классифицированную ошибку чтения сессии
func (s *Synchronizer) publishFailure(gen uint64, uid string, err error) {
	class := Classify(err, s.isOnline())
	s.publish(gen, uid, func(st *domain.State) {
		st.Error = Message(class, err)
		st.ErrorClass = class
		st.Syncing = false
	})
}

func (s *Synchronizer) isOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Online
}

// current проверяет, что поколение и пользователь не сменились
func (s *Synchronizer) current(gen uint64, uid string) bool {
	if !s.alive.Load() || s.generation.Load() != gen {
		return false
	}
	if uid == "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserID == uid
}

// publish применяет mutate, только если поколение gen актуально,
// а пользователь (если uid задан) не сменился
func (s *Synchronizer) publish(gen uint64, uid string, mutate func(*domain.State)) bool {
	if !s.alive.Load() {
		return false
	}

	s.mu.Lock()
	if s.generation.Load() != gen || (uid != "" && s.state.UserID != uid) {
		s.mu.Unlock()
		s.logger.Debug("Dropped stale publish", logger.Uint64("generation", gen), logger.String("user_id", uid))
		return false
	}
	mutate(&s.state)
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return true
}

// update применяет mutate без проверки поколения
func (s *Synchronizer) update(mutate func(*domain.State)) {
	if !s.alive.Load() {
		return
	}

	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Synchronizer) notify(state domain.State) {
	s.subMu.Lock()
	subscribers := make([]func(domain.State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subscribers {
		fn(state.Clone())
	}
}

// goAsync запускает fn в фоне с контекстом, который отменяется в Close
func (s *Synchronizer) goAsync(fn func(ctx context.Context)) {
	if !s.alive.Load() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Background task panicked", logger.Any("panic", r))
			}
		}()
		fn(s.baseCtx)
	}()
}

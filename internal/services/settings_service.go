package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"billing-service/internal/cache"
	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// SettingsReader is the read side other services depend on
type SettingsReader interface {
	GetInt(ctx context.Context, key string, def int64) (int64, error)
}

type cachedSetting struct {
	Value    json.RawMessage    `json:"value"`
	Type     models.SettingType `json:"type"`
	IsPublic bool               `json:"is_public"`
}

// settingsSnapshot is the cached form of all settings, tagged with the
// generation that was current when it was loaded
type settingsSnapshot struct {
	Generation int64                    `json:"generation"`
	Settings   map[string]cachedSetting `json:"settings"`
}

func (c cachedSetting) decode(key string) (interface{}, error) {
	s := models.Setting{Key: key, Value: datatypes.JSON(c.Value), Type: c.Type}
	return s.TypedValue()
}

// SettingsService serves global settings from one cached snapshot
type SettingsService struct {
	db       *gorm.DB
	repo     repository.SettingRepository
	cache    cache.Store
	cacheKey string
	ttl      time.Duration
	events   eventEmitter
	logger   *logrus.Entry
}

// NewSettingsService creates a settings service caching under cacheKey for ttl
func NewSettingsService(
	db *gorm.DB,
	repo repository.SettingRepository,
	store cache.Store,
	cacheKey string,
	ttl time.Duration,
	publisher EventPublisher,
	logger *logrus.Logger,
) *SettingsService {
	entry := logger.WithField("service", "settings")
	return &SettingsService{
		db:       db,
		repo:     repo,
		cache:    store,
		cacheKey: cacheKey,
		ttl:      ttl,
		events:   newEventEmitter(publisher, entry, utcNow),
		logger:   entry,
	}
}

// Get returns the typed value of key, or def when the key is unknown
func (s *SettingsService) Get(ctx context.Context, key string, def interface{}) (interface{}, error) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := snapshot[key]
	if !ok {
		return def, nil
	}
	return entry.decode(key)
}

// GetString returns a string setting, or def when unknown or not a string
func (s *SettingsService) GetString(ctx context.Context, key, def string) (string, error) {
	v, err := s.Get(ctx, key, def)
	if err != nil {
		return def, err
	}
	if str, ok := v.(string); ok {
		return str, nil
	}
	return def, nil
}

// GetInt returns an integer setting, or def when unknown or not numeric
func (s *SettingsService) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	v, err := s.Get(ctx, key, def)
	if err != nil {
		return def, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return def, nil
}

// GetBool returns a boolean setting, or def when unknown or not a boolean
func (s *SettingsService) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := s.Get(ctx, key, def)
	if err != nil {
		return def, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return def, nil
}

// All returns every setting decoded
func (s *SettingsService) All(ctx context.Context) (map[string]interface{}, error) {
	return s.decoded(ctx, false)
}

// GetAllPublic returns the settings flagged public
func (s *SettingsService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	return s.decoded(ctx, true)
}

// Set persists one setting and drops the cached snapshot before returning
func (s *SettingsService) Set(ctx context.Context, key string, value interface{}, actor Actor) error {
	return s.UpdateMany(ctx, map[string]interface{}{key: value}, actor)
}

// UpdateMany persists all values in one transaction, then drops the cached
// snapshot. Keys are validated before anything is written.
func (s *SettingsService) UpdateMany(ctx context.Context, values map[string]interface{}, actor Actor) error {
	if len(values) == 0 {
		return NewValidationError("settings", "at least one setting is required")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs ValidationErrors
	encoded := make(map[string][]byte, len(values))
	for _, k := range keys {
		if err := validate.Var(k, "required,max=191,setting_key"); err != nil {
			errs = append(errs, NewValidationError(k, "invalid setting key"))
			continue
		}
		raw, err := json.Marshal(values[k])
		if err != nil {
			errs = append(errs, NewValidationError(k, "value cannot be encoded"))
			continue
		}
		encoded[k] = raw
	}
	if len(errs) > 0 {
		return errs
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, k := range keys {
			existing, err := repo.GetByKey(ctx, k)
			if err != nil {
				return err
			}
			setting := &models.Setting{
				Key:   k,
				Value: datatypes.JSON(encoded[k]),
				Type:  resolveSettingType(existing, values[k]),
			}
			if existing != nil {
				setting.IsPublic = existing.IsPublic
				setting.Description = existing.Description
			}
			if err := repo.Upsert(ctx, setting); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.ClearCache(ctx); err != nil {
		return fmt.Errorf("settings saved but cache invalidation failed: %w", err)
	}

	s.events.emit(ctx, EventSettingsUpdated, actor, map[string]interface{}{"keys": keys})
	return nil
}

// ClearCache bumps the snapshot generation and drops the cached snapshot.
// A reader that loaded rows before the bump can still write its snapshot
// back, but it carries the old generation and is ignored.
func (s *SettingsService) ClearCache(ctx context.Context) error {
	if _, err := s.cache.Incr(ctx, s.generationKey()); err != nil {
		return err
	}
	return s.cache.Delete(ctx, s.cacheKey)
}

func (s *SettingsService) generationKey() string {
	return s.cacheKey + ":generation"
}

// generation returns the current snapshot generation, zero when unset
func (s *SettingsService) generation(ctx context.Context) (int64, error) {
	raw, ok, err := s.cache.Get(ctx, s.generationKey())
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid settings generation %q: %w", raw, err)
	}
	return n, nil
}

func (s *SettingsService) decoded(ctx context.Context, publicOnly bool) (map[string]interface{}, error) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(snapshot))
	for key, entry := range snapshot {
		if publicOnly && !entry.IsPublic {
			continue
		}
		v, err := entry.decode(key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// snapshot loads every setting through the cache. A broken cache degrades
// to database reads and nothing is written back.
func (s *SettingsService) snapshot(ctx context.Context) (map[string]cachedSetting, error) {
	generation, err := s.generation(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Settings cache read failed, loading from database")
		return s.load(ctx)
	}

	raw, ok, err := s.cache.Get(ctx, s.cacheKey)
	if err != nil {
		s.logger.WithError(err).Warn("Settings cache read failed, loading from database")
		return s.load(ctx)
	}
	if ok {
		var cached settingsSnapshot
		switch err := json.Unmarshal(raw, &cached); {
		case err != nil:
			s.logger.Warn("Discarding unreadable settings snapshot")
		case cached.Generation == generation:
			return cached.Settings, nil
		}
	}

	settings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(settingsSnapshot{Generation: generation, Settings: settings})
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings snapshot: %w", err)
	}
	if err := s.cache.Set(ctx, s.cacheKey, encoded, s.ttl); err != nil {
		s.logger.WithError(err).Warn("Failed to cache settings snapshot")
	}
	return settings, nil
}

func (s *SettingsService) load(ctx context.Context) (map[string]cachedSetting, error) {
	settings, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]cachedSetting, len(settings))
	for _, st := range settings {
		snapshot[st.Key] = cachedSetting{
			Value:    json.RawMessage(st.Value),
			Type:     st.Type,
			IsPublic: st.IsPublic,
		}
	}
	return snapshot, nil
}

// resolveSettingType keeps an integer setting integer when a whole float
// arrives, which is how JSON numbers decode
func resolveSettingType(existing *models.Setting, value interface{}) models.SettingType {
	inferred := models.InferSettingType(value)
	if existing == nil || existing.Type != models.SettingTypeInteger || inferred != models.SettingTypeFloat {
		return inferred
	}
	var f float64
	switch n := value.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return models.SettingTypeInteger
	}
	return inferred
}

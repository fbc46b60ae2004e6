package calibration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Store persists the parameter set and the prediction log across
// process restarts. Loads of missing state return empty results, not
// errors, so fresh deployments start from documented defaults.
type Store interface {
	SaveParameters(params map[string]*ParameterConfig) error
	LoadParameters() (map[string]*ParameterConfig, error)
	SavePredictions(records []PredictionRecord) error
	LoadPredictions() ([]PredictionRecord, error)
}

// FileStore keeps both files as JSON on local disk
type FileStore struct {
	parameterPath  string
	predictionPath string
	logger         *logrus.Logger
}

// NewFileStore creates a file-backed store
func NewFileStore(parameterPath, predictionPath string, logger *logrus.Logger) *FileStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &FileStore{
		parameterPath:  parameterPath,
		predictionPath: predictionPath,
		logger:         logger,
	}
}

func (s *FileStore) SaveParameters(params map[string]*ParameterConfig) error {
	return s.writeJSON(s.parameterPath, params)
}

func (s *FileStore) LoadParameters() (map[string]*ParameterConfig, error) {
	var params map[string]*ParameterConfig
	if ok := s.readJSON(s.parameterPath, &params); !ok {
		return nil, nil
	}
	return params, nil
}

func (s *FileStore) SavePredictions(records []PredictionRecord) error {
	return s.writeJSON(s.predictionPath, records)
}

func (s *FileStore) LoadPredictions() ([]PredictionRecord, error) {
	var records []PredictionRecord
	if ok := s.readJSON(s.predictionPath, &records); !ok {
		return nil, nil
	}
	return records, nil
}

// writeJSON writes atomically via a temp file so a crash mid-write
// cannot corrupt the previous state.
func (s *FileStore) writeJSON(path string, value interface{}) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// readJSON reports false for missing or corrupt files; callers fall
// back to defaults rather than crash.
func (s *FileStore) readJSON(path string, value interface{}) bool {
	if path == "" {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to read state file")
		}
		return false
	}
	if err := json.Unmarshal(data, value); err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("State file corrupt, falling back to defaults")
		return false
	}
	return true
}

// RedisStore keeps calibration state as JSON blobs in redis, for
// deployments where several processes share one calibrator's state.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *logrus.Logger
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(client *redis.Client, keyPrefix string, logger *logrus.Logger) *RedisStore {
	if logger == nil {
		logger = logrus.New()
	}
	if keyPrefix == "" {
		keyPrefix = "calibration"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (s *RedisStore) SaveParameters(params map[string]*ParameterConfig) error {
	return s.setJSON(s.keyPrefix+":parameters", params)
}

func (s *RedisStore) LoadParameters() (map[string]*ParameterConfig, error) {
	var params map[string]*ParameterConfig
	ok, err := s.getJSON(s.keyPrefix+":parameters", &params)
	if err != nil || !ok {
		return nil, err
	}
	return params, nil
}

func (s *RedisStore) SavePredictions(records []PredictionRecord) error {
	return s.setJSON(s.keyPrefix+":predictions", records)
}

func (s *RedisStore) LoadPredictions() ([]PredictionRecord, error) {
	var records []PredictionRecord
	ok, err := s.getJSON(s.keyPrefix+":predictions", &records)
	if err != nil || !ok {
		return nil, err
	}
	return records, nil
}

func (s *RedisStore) setJSON(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (s *RedisStore) getJSON(key string, value interface{}) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), value); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("State blob corrupt, falling back to defaults")
		return false, nil
	}
	return true, nil
}

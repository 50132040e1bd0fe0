package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/pkg/utils"
)

const (
	maxApiKeysPerUser     = 5
	keyGenerationAttempts = 3
)

var ErrApiKeyNotFound = errors.New("key doesn't exist")

type ApiKeyService interface {
	Create(ctx context.Context, userID int64, label string) (*models.ApiKey, error)
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, userID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{k: k}
}

func (s *apiKeyService) Create(ctx context.Context, userID int64, label string) (*models.ApiKey, error) {
	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(keys) >= maxApiKeysPerUser {
		err = fmt.Errorf("only %d API keys can be created", maxApiKeysPerUser)
		slog.Info(err.Error())
		return nil, err
	}

	for attempt := 0; attempt < keyGenerationAttempts; attempt++ {
		key, err := utils.GenerateRandomKey(24)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("error generating API key")
		}

		apiKey := &models.ApiKey{
			UserID: userID,
			Label:  label,
			ApiKey: key,
		}

		id, err := s.k.Create(ctx, apiKey)
		if errors.Is(err, repository.ErrDuplicateApiKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error saving API key")
		}
		apiKey.ID = id
		return apiKey, nil
	}
	return nil, fmt.Errorf("error generating a unique API key")
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	userID, exists, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrApiKeyNotFound
	}
	return userID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting API keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	if userID == 0 || keyID == 0 {
		err := errors.New("user id and key id are required")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info(ErrApiKeyNotFound.Error())
		return ErrApiKeyNotFound
	}

	return s.k.Remove(ctx, keyID)
}

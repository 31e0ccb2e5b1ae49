package momotest

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/thesyncim/momo-e2e/pkg/momo"
)

// Environment variables read by SoraSettingsFromEnv.
const (
	EnvSoraSignalingURLs   = "TEST_SORA_MODE_SIGNALING_URLS"
	EnvSoraChannelIDPrefix = "TEST_SORA_MODE_CHANNEL_ID_PREFIX"
	EnvSoraSecretKey       = "TEST_SORA_MODE_SECRET_KEY"
)

// AccessTokenTTL is the lifetime of tokens minted by AccessToken.
const AccessTokenTTL = 300 * time.Second

// SoraSettings locate a Sora deployment for tests.
type SoraSettings struct {
	SignalingURLs   []string
	ChannelIDPrefix string
	SecretKey       string
}

// SoraSettingsFromEnv reads the TEST_SORA_MODE_* variables, loading the
// given .env files first (a missing file is not an error; variables
// already set win). ok is false when any variable is missing.
func SoraSettingsFromEnv(envFiles ...string) (SoraSettings, bool, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return SoraSettings{}, false, err
		}
	}
	s := SoraSettings{
		SignalingURLs:   momo.SplitSignalingURLs(os.Getenv(EnvSoraSignalingURLs)),
		ChannelIDPrefix: os.Getenv(EnvSoraChannelIDPrefix),
		SecretKey:       os.Getenv(EnvSoraSecretKey),
	}
	ok := len(s.SignalingURLs) > 0 && s.ChannelIDPrefix != "" && s.SecretKey != ""
	return s, ok, nil
}

// ChannelID returns the prefix plus a random suffix, so concurrent runs
// do not share a channel.
func (s SoraSettings) ChannelID() string {
	return s.ChannelIDPrefix + uuid.NewString()
}

// AccessToken signs an HS256 token granting access to channelID.
func (s SoraSettings) AccessToken(channelID string) (string, error) {
	return SignAccessToken(s.SecretKey, channelID, time.Now().Add(AccessTokenTTL))
}

// Metadata returns the connect metadata carrying an access token.
func (s SoraSettings) Metadata(channelID string) (map[string]any, error) {
	token, err := s.AccessToken(channelID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"access_token": token}, nil
}

// Config returns a Sora config for a fresh channel with a valid token.
func (s SoraSettings) Config(role string) (*momo.SoraConfig, error) {
	channel := s.ChannelID()
	metadata, err := s.Metadata(channel)
	if err != nil {
		return nil, err
	}
	return &momo.SoraConfig{
		SignalingURLs: s.SignalingURLs,
		ChannelID:     channel,
		Role:          role,
		Metadata:      metadata,
	}, nil
}

// SignAccessToken signs {"channel_id": channelID, "exp": exp} with secret.
func SignAccessToken(secret, channelID string, exp time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"channel_id": channelID,
		"exp":        jwt.NewNumericDate(exp),
	})
	return token.SignedString([]byte(secret))
}

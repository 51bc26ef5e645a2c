package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rajivgeraev/skillswap-api/internal/config"
)

func TestAvatarURLWithoutConfig(t *testing.T) {
	s := NewCloudinaryService(&config.Config{}, zerolog.Nop())
	assert.Equal(t, "avatars/ann", s.AvatarURL("avatars/ann"))
	assert.Equal(t, "", s.AvatarURL(""))
}

func TestAvatarURLBuildsDeliveryURL(t *testing.T) {
	s := NewCloudinaryService(&config.Config{CloudinaryConfig: config.CloudinaryConfig{
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
	}}, zerolog.Nop())

	url := s.AvatarURL("avatars/ann")
	assert.Contains(t, url, "https://res.cloudinary.com/demo/image/upload/")
	assert.Contains(t, url, "avatars/ann")

	assert.Equal(t, "https://cdn.example.com/a.png", s.AvatarURL("https://cdn.example.com/a.png"))
}

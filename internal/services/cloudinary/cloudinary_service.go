package cloudinary

import (
	"strings"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/config"
)

// CloudinaryService строит URL аватаров участников по public ID в Cloudinary
type CloudinaryService struct {
	client *cld.Cloudinary
	logger zerolog.Logger
}

// NewCloudinaryService создает новый экземпляр CloudinaryService.
// Без CLOUDINARY_CLOUD_NAME ссылки на аватары возвращаются без изменений.
func NewCloudinaryService(cfg *config.Config, logger zerolog.Logger) *CloudinaryService {
	s := &CloudinaryService{logger: logger.With().Str("service", "cloudinary").Logger()}

	if cfg.CloudinaryConfig.CloudName == "" {
		s.logger.Warn().Msg("⚠️ Cloudinary не настроен, аватары отдаются как есть")
		return s
	}

	client, err := cld.NewFromParams(cfg.CloudinaryConfig.CloudName, cfg.CloudinaryConfig.APIKey, cfg.CloudinaryConfig.APISecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("❌ Ошибка инициализации Cloudinary")
		return s
	}
	client.Config.URL.Secure = true

	s.client = client
	return s
}

// AvatarURL возвращает URL доставки для public ID. Готовые URL не меняются.
func (s *CloudinaryService) AvatarURL(ref string) string {
	if s.client == nil || ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	image, err := s.client.Image(ref)
	if err != nil {
		s.logger.Warn().Err(err).Str("public_id", ref).Msg("Не удалось построить URL аватара")
		return ref
	}

	url, err := image.String()
	if err != nil {
		s.logger.Warn().Err(err).Str("public_id", ref).Msg("Не удалось построить URL аватара")
		return ref
	}
	return url
}

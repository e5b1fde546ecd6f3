package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) (auditdomain.Service, error) {
	if err := p.DB.AutoMigrate(&auditdomain.ChangeEvent{}); err != nil {
		return nil, err
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}, nil
}

func (s *Service) Record(ctx context.Context, entityType, entityID string, before, after map[string]any, description string) {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		entityType = "unknown"
	}

	event := auditdomain.ChangeEvent{
		ID:          s.genID.Generate(),
		EntityType:  entityType,
		EntityID:    strings.TrimSpace(entityID),
		Before:      datatypes.JSONMap(before),
		After:       datatypes.JSONMap(after),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.Warn("failed to write audit event",
			zap.String("entity_type", entityType),
			zap.String("entity_id", event.EntityID),
			zap.Error(err),
		)
	}
}

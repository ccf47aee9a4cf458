package routing

import (
	"connector/internal/config_handler"
	"connector/internal/logger"
	"connector/pkg/models"
)

type Handler = config_handler.Handler

func NewHandler(service *Service, log logger.Logger) *Handler {
	return config_handler.NewHandler(
		models.EventTypeRoutingRuleUpdated,
		models.ServiceTypeRouting,
		service,
		log,
	)
}

package controller

import (
	"log"

	"gorm.io/gorm"

	"github.com/HeltonFraga01/cortexx-sub017/worker"
)

// CampaignController groups the campaign HTTP handlers. Control
// operations (start, pause, resume, cancel) go through the dispatcher
// so every status change takes the same guarded transition path the
// workers use.
type CampaignController struct {
	DB         *gorm.DB
	Logger     *log.Logger
	Store      worker.Store
	Dispatcher *worker.Dispatcher
}

func NewCampaignController(db *gorm.DB, logger *log.Logger, store worker.Store, dispatcher *worker.Dispatcher) *CampaignController {
	return &CampaignController{
		DB:         db,
		Logger:     logger,
		Store:      store,
		Dispatcher: dispatcher,
	}
}

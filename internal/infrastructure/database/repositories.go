package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farunova-art/farunova-sub001/internal/adapter/repository"
	domainRepo "github.com/farunova-art/farunova-sub001/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Payment            domainRepo.PaymentRepository
	Refund             domainRepo.RefundRepository
	Reconciliation     domainRepo.ReconciliationRepository
	GatewayTransaction domainRepo.GatewayTransactionRepository
	CallbackEvent      domainRepo.CallbackEventRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Payment:            repository.NewPaymentRepository(db, logger),
		Refund:             repository.NewRefundRepository(db, logger),
		Reconciliation:     repository.NewReconciliationRepository(db, logger),
		GatewayTransaction: repository.NewGatewayTransactionRepository(db, logger),
		CallbackEvent:      repository.NewCallbackEventRepository(db, logger),
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus этап заявки на оплату
type PaymentStatus string

const (
	PaymentCreated             PaymentStatus = "created"
	PaymentScreenshotSubmitted PaymentStatus = "screenshot_submitted"
	PaymentReferenceSubmitted  PaymentStatus = "reference_submitted"
	PaymentConfirmed           PaymentStatus = "confirmed"
)

// Payment заявка пользователя на оплату тарифа.
// У пользователя не больше одной открытой (не подтвержденной) заявки.
type Payment struct {
	ID               string        `json:"id"`
	UserID           int64         `json:"user_id"`
	Username         string        `json:"username,omitempty"`
	Plan             PlanKey       `json:"plan"`
	ScreenshotFileID string        `json:"screenshot_file_id,omitempty"`
	TxID             string        `json:"txid,omitempty"`
	Status           PaymentStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// GenerateID генерирует новый UUID для платежа, если он еще не установлен
func (p *Payment) GenerateID() {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
}

// Open сообщает, что заявка еще не подтверждена администратором
func (p *Payment) Open() bool {
	return p.Status != PaymentConfirmed
}

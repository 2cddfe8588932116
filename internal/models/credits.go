package models

import (
	"time"

	"github.com/google/uuid"
)

// Стоимость операций в кредитах. Списание происходит до запуска
// задачи; при провале генерации кредиты не возвращаются.
const (
	CostChatCompletion  = 1
	CostImageGeneration = 10
	CostVideoGeneration = 100
)

// CreditPacks — размер пакетов кредитов по идентификатору тарифа
// платежного провайдера.
var CreditPacks = map[string]int{
	"pack_small":  50,
	"pack_medium": 150,
	"pack_large":  500,
}

// Credits — баланс кредитов пользователя. Remaining никогда
// не уходит в минус: списание выполняется одним условным UPDATE.
type Credits struct {
	UserID    uuid.UUID `json:"userId"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updatedAt"`
}

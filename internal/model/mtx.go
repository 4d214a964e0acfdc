package model

// ReceiptInfo is a purchase notification from the commerce platform.
// Delivery is at-least-once and unordered.
type ReceiptInfo struct {
	PurchaseID    string    `json:"purchase_id"`
	PlayerID      UserID    `json:"player_id"`
	ProductID     ProductID `json:"product_id"`
	CurrencySpent int64     `json:"currency_spent"`
}

// PurchaseDecision is the answer returned to the commerce platform
type PurchaseDecision string

const (
	// NotProcessedYet asks the platform to redeliver the receipt later
	NotProcessedYet PurchaseDecision = "NotProcessedYet"
	PurchaseGranted PurchaseDecision = "PurchaseGranted"
)

// InfoType selects which platform catalog a product lookup targets
type InfoType string

const (
	InfoTypeProduct  InfoType = "Product"
	InfoTypeGamePass InfoType = "GamePass"
)

// ProductInfo is catalog metadata for a product or game pass
type ProductInfo struct {
	ID        string   `json:"id"`
	Type      InfoType `json:"type"`
	Name      string   `json:"name"`
	Price     int64    `json:"price"`
	IsForSale bool     `json:"is_for_sale"`
}

// BadgeInfo is catalog metadata for a badge
type BadgeInfo struct {
	ID        BadgeID `json:"id"`
	Name      string  `json:"name"`
	IsEnabled bool    `json:"is_enabled"`
}

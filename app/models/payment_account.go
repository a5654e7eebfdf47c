package models

import (
	"strings"
	"time"
)

// Gateway name constants used across payment-related models.
const (
	GatewayStripe = "stripe"
	GatewayPayPal = "paypal"
)

// Selection strategy constants for account rotation.
const (
	StrategyLeastUsed  = "least_used"
	StrategyRoundRobin = "round_robin"
	StrategyWeighted   = "weighted"
	StrategyManual     = "manual"
)

// PaymentAccount stores one credential set bound to a single gateway.
// Usage counters only ever increase via the success/failure recording
// operations; accounts are soft-disabled via Active, never deleted.
type PaymentAccount struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Name                   string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Gateway                string     `gorm:"type:varchar(20);not null;index:idx_payment_accounts_gateway_active,priority:1" json:"gateway"`
	Active                 bool       `gorm:"default:true;index:idx_payment_accounts_gateway_active,priority:2" json:"active"`
	Sandbox                bool       `gorm:"default:false" json:"sandbox"`
	Currencies             string     `gorm:"type:varchar(200);default:''" json:"currencies"`
	Countries              string     `gorm:"type:varchar(500);default:''" json:"countries"`
	Weight                 int        `gorm:"default:1" json:"weight"`
	Priority               int        `gorm:"default:0" json:"priority"`
	SuccessfulTransactions uint64     `gorm:"default:0" json:"successful_transactions"`
	FailedTransactions     uint64     `gorm:"default:0" json:"failed_transactions"`
	TotalAmount            int64      `gorm:"default:0" json:"total_amount"`
	LastUsedAt             *time.Time `gorm:"type:timestamp;default:null" json:"last_used_at,omitempty"`
	SecretKeyEnc           string     `gorm:"type:text" json:"-"`
	ClientIDEnc            string     `gorm:"type:text" json:"-"`
	ClientSecretEnc        string     `gorm:"type:text" json:"-"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SupportsCurrency reports whether the account accepts the given currency.
// An empty Currencies list means "all currencies".
func (a *PaymentAccount) SupportsCurrency(currency string) bool {
	return supportsListEntry(a.Currencies, currency)
}

// SupportsCountry reports whether the account accepts the given country.
// An empty Countries list means "all countries".
func (a *PaymentAccount) SupportsCountry(country string) bool {
	return supportsListEntry(a.Countries, country)
}

func supportsListEntry(list, entry string) bool {
	list = strings.TrimSpace(list)
	if list == "" {
		return true
	}
	entry = strings.ToLower(strings.TrimSpace(entry))
	if entry == "" {
		return true
	}
	for _, item := range strings.Split(list, ",") {
		if strings.ToLower(strings.TrimSpace(item)) == entry {
			return true
		}
	}
	return false
}

package policy

import "github.com/attaboy/giveaways/internal/domain"

// Breached limit names.
const (
	LimitPerCheckout = "per_checkout"
	LimitPerUser     = "per_user"
	LimitSpend       = "spend"
)

// PurchaseLimitPolicy bounds a single ticket purchase.
type PurchaseLimitPolicy struct {
	MaxQtyPerCheckout        int   `json:"max_qty_per_checkout"`
	MaxTicketsPerUser        *int  `json:"max_tickets_per_user,omitempty"`
	MaxSpendPerCheckoutMinor int64 `json:"max_spend_per_checkout_minor,omitempty"` // 0 = no limit
}

// CampaignPurchaseLimits builds the policy for a campaign.
func CampaignPurchaseLimits(c *domain.Campaign, maxSpendMinor int64) PurchaseLimitPolicy {
	return PurchaseLimitPolicy{
		MaxQtyPerCheckout:        domain.MaxQtyPerCheckout,
		MaxTicketsPerUser:        c.MaxTicketsPerUser,
		MaxSpendPerCheckoutMinor: maxSpendMinor,
	}
}

// PurchaseEvaluation holds the result of a purchase limits check.
type PurchaseEvaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int64  `json:"limit_value,omitempty"`
	Requested     int64  `json:"requested,omitempty"`
}

// EvaluatePurchaseLimits checks qty against the policy. heldTickets is what the
// user already owns in the campaign; unitPriceMinor is the ticket price.
func EvaluatePurchaseLimits(policy PurchaseLimitPolicy, qty int, heldTickets int64, unitPriceMinor int64) PurchaseEvaluation {
	if policy.MaxQtyPerCheckout > 0 && qty > policy.MaxQtyPerCheckout {
		return PurchaseEvaluation{
			Allowed:       false,
			BreachedLimit: LimitPerCheckout,
			LimitValue:    int64(policy.MaxQtyPerCheckout),
			Requested:     int64(qty),
		}
	}

	if policy.MaxTicketsPerUser != nil {
		if heldTickets+int64(qty) > int64(*policy.MaxTicketsPerUser) {
			return PurchaseEvaluation{
				Allowed:       false,
				BreachedLimit: LimitPerUser,
				LimitValue:    int64(*policy.MaxTicketsPerUser),
				Requested:     heldTickets + int64(qty),
			}
		}
	}

	if policy.MaxSpendPerCheckoutMinor > 0 {
		total := unitPriceMinor * int64(qty)
		if total > policy.MaxSpendPerCheckoutMinor {
			return PurchaseEvaluation{
				Allowed:       false,
				BreachedLimit: LimitSpend,
				LimitValue:    policy.MaxSpendPerCheckoutMinor,
				Requested:     total,
			}
		}
	}

	return PurchaseEvaluation{Allowed: true}
}

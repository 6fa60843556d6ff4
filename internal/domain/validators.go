package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	slugRegex     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// ValidateCurrency checks if a currency code is ISO 4217.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive (in minor units).
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	return nil
}

// ValidateQty checks a purchase quantity.
func ValidateQty(qty int) error {
	if qty < 1 {
		return fmt.Errorf("qty must be at least 1, got %d", qty)
	}
	if qty > MaxQtyPerCheckout {
		return fmt.Errorf("qty must be at most %d, got %d", MaxQtyPerCheckout, qty)
	}
	return nil
}

// ValidateUnlockRatio checks that a ratio lies in [0, 1].
func ValidateUnlockRatio(r *decimal.Decimal) error {
	if r == nil {
		return nil
	}
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("unlock ratio must be between 0 and 1, got %s", r.String())
	}
	return nil
}

// ValidateCampaignParams checks admin input for a new campaign.
func ValidateCampaignParams(p CreateCampaignParams) error {
	if !slugRegex.MatchString(p.Slug) {
		return fmt.Errorf("invalid slug: %q", p.Slug)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(p.PrizeTitle) == "" {
		return fmt.Errorf("prize title is required")
	}
	if !p.EndAt.After(p.StartAt) {
		return fmt.Errorf("end_at must be after start_at")
	}
	if err := ValidatePositiveAmount(p.TicketPriceMinor); err != nil {
		return fmt.Errorf("ticket price: %w", err)
	}
	if err := ValidateCurrency(p.Currency); err != nil {
		return err
	}
	if p.MaxTicketsTotal != nil && *p.MaxTicketsTotal < 1 {
		return fmt.Errorf("max_tickets_total must be at least 1")
	}
	if p.MaxTicketsPerUser != nil && *p.MaxTicketsPerUser < 1 {
		return fmt.Errorf("max_tickets_per_user must be at least 1")
	}
	return nil
}

// ValidatePrizeParams checks admin input for an instant-win prize.
func ValidatePrizeParams(p CreatePrizeParams) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("prize title is required")
	}
	return ValidateUnlockRatio(p.UnlockRatio)
}

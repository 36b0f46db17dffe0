package domain

import (
	"context"
	"errors"
	"time"

	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"gorm.io/gorm"
)

type ProvisionRequest struct {
	OwnerID     string `json:"payee_id" validate:"required,max=128"`
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required,max=200"`
	Country     string `json:"country" validate:"required,iso3166_1_alpha2"`
}

type ProvisionResponse struct {
	ExternalAccountID string `json:"external_account_id"`
	ChargesEnabled    bool   `json:"charges_enabled"`
	PayoutsEnabled    bool   `json:"payouts_enabled"`
	DetailsSubmitted  bool   `json:"details_submitted"`
	// Created is false when an existing account was reused.
	Created bool `json:"-"`
}

type OnboardingLinkRequest struct {
	OwnerID    string `json:"payee_id" validate:"required"`
	RefreshURL string `json:"refresh_url" validate:"required,http_url"`
	ReturnURL  string `json:"return_url" validate:"required,http_url"`
}

type OnboardingLinkResponse struct {
	OnboardingURL string    `json:"onboarding_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SyncResult describes the local account after a capability sync. Found is
// false for accounts this system never provisioned. Stale is set when a newer
// update was already applied and this one changed nothing.
type SyncResult struct {
	Found              bool
	Stale              bool
	OwnerID            string
	PayoutEnabled      bool
	PayoutsJustEnabled bool
}

type Service interface {
	Provision(ctx context.Context, req ProvisionRequest) (ProvisionResponse, error)
	CreateOnboardingLink(ctx context.Context, req OnboardingLinkRequest) (OnboardingLinkResponse, error)
	SyncCapabilities(ctx context.Context, tx *gorm.DB, update *gatewaydomain.AccountUpdate) (SyncResult, error)
	GetByOwner(ctx context.Context, ownerID string) (PayeeAccount, error)
	IsPayoutEligible(ctx context.Context, tx *gorm.DB, ownerID string) (bool, error)
}

var (
	ErrInvalidRequest = errors.New("invalid_payee_request")
	ErrInvalidOwner   = errors.New("invalid_owner")
	ErrNotFound       = errors.New("payee_account_not_found")
)

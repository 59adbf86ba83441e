package domain

import (
	"errors"
	"strings"
	"time"
)

// Provider selects the transport used to reach a subscription
type Provider string

const (
	ProviderWebPush Provider = "webpush"
	ProviderFCM     Provider = "fcm"
)

var (
	// ErrSubscriptionGone means the push service reported the endpoint as permanently gone
	ErrSubscriptionGone = errors.New("push subscription gone")
	// ErrInvalidSubscription is returned when required fields are missing
	ErrInvalidSubscription = errors.New("invalid push subscription")
)

// Subscription is a push endpoint the dispatcher delivers reminder alerts to.
// For FCM subscriptions Endpoint holds the device registration token.
type Subscription struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Endpoint  string    `json:"endpoint" gorm:"uniqueIndex;not null"`
	P256dh    string    `json:"-"`
	Auth      string    `json:"-"`
	Provider  Provider  `json:"provider" gorm:"default:webpush"`
	UserAgent string    `json:"user_agent"`
	IsActive  bool      `json:"is_active" gorm:"index;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWebPushSubscription validates a browser subscription. Both encryption keys are required.
func NewWebPushSubscription(endpoint, p256dh, auth, userAgent string) (*Subscription, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "https://") || p256dh == "" || auth == "" {
		return nil, ErrInvalidSubscription
	}
	return &Subscription{
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		Provider:  ProviderWebPush,
		UserAgent: userAgent,
		IsActive:  true,
	}, nil
}

// NewFCMSubscription wraps a Firebase device token
func NewFCMSubscription(token, userAgent string) (*Subscription, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSubscription
	}
	return &Subscription{
		Endpoint:  token,
		Provider:  ProviderFCM,
		UserAgent: userAgent,
		IsActive:  true,
	}, nil
}

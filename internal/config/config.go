/**
 * @description
 * This file handles configuration management for the membership-service. All
 * settings load from environment variables via viper, with defaults for the
 * payment tiers, scheduling cadence, and reminder policy. The payment amounts
 * are deployment constants, not logic, which is why they live here.
 *
 * @dependencies
 * - strings: Standard Go library.
 * - github.com/spf13/viper: Configuration management.
 */

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the membership service.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	SMSGatewayURL   string `mapstructure:"SMS_GATEWAY_URL"`
	SMSAPIKey       string `mapstructure:"SMS_API_KEY"`
	SMSSenderNumber string `mapstructure:"SMS_SENDER_NUMBER"`

	// Comma-separated staff phone numbers notified on payment confirmations.
	AdminPhoneNumbers string `mapstructure:"ADMIN_PHONE_NUMBERS"`

	Currency                string `mapstructure:"CURRENCY"`
	FirstTimePaymentAmount  int64  `mapstructure:"FIRST_TIME_PAYMENT_AMOUNT"`
	FirstTimePaymentMinimum int64  `mapstructure:"FIRST_TIME_PAYMENT_MINIMUM"`
	RenewalPaymentAmount    int64  `mapstructure:"RENEWAL_PAYMENT_AMOUNT"`
	RenewalPaymentMinimum   int64  `mapstructure:"RENEWAL_PAYMENT_MINIMUM"`

	TransferExpiryHours       int    `mapstructure:"TRANSFER_EXPIRY_HOURS"`
	ReconciliationSchedule    string `mapstructure:"RECONCILIATION_SCHEDULE"`
	IdempotencyRetentionDays  int    `mapstructure:"IDEMPOTENCY_RETENTION_DAYS"`
	PreExpiryReminderLeadDays int    `mapstructure:"PRE_EXPIRY_REMINDER_LEAD_DAYS"`
	PostExpiryLookbackDays    int    `mapstructure:"POST_EXPIRY_LOOKBACK_DAYS"`
	PostExpiryReminderCap     int    `mapstructure:"POST_EXPIRY_REMINDER_CAP"`

	TransferCreateRateLimitPerHour int `mapstructure:"TRANSFER_CREATE_RATE_LIMIT_PER_HOUR"`
}

// AdminPhoneList splits the configured staff numbers, dropping blanks.
func (c Config) AdminPhoneList() []string {
	var phones []string
	for _, phone := range strings.Split(c.AdminPhoneNumbers, ",") {
		if trimmed := strings.TrimSpace(phone); trimmed != "" {
			phones = append(phones, trimmed)
		}
	}
	return phones
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("CURRENCY", "usd")
	viper.SetDefault("FIRST_TIME_PAYMENT_AMOUNT", 425)
	viper.SetDefault("FIRST_TIME_PAYMENT_MINIMUM", 400)
	viper.SetDefault("RENEWAL_PAYMENT_AMOUNT", 350)
	viper.SetDefault("RENEWAL_PAYMENT_MINIMUM", 300)
	viper.SetDefault("TRANSFER_EXPIRY_HOURS", 48)
	viper.SetDefault("RECONCILIATION_SCHEDULE", "0 10 * * *") // daily at 10:00
	viper.SetDefault("IDEMPOTENCY_RETENTION_DAYS", 30)
	viper.SetDefault("PRE_EXPIRY_REMINDER_LEAD_DAYS", 2)
	viper.SetDefault("POST_EXPIRY_LOOKBACK_DAYS", 10)
	viper.SetDefault("POST_EXPIRY_REMINDER_CAP", 5)
	viper.SetDefault("TRANSFER_CREATE_RATE_LIMIT_PER_HOUR", 5)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL", "JWT_SECRET",
		"SMS_GATEWAY_URL", "SMS_API_KEY", "SMS_SENDER_NUMBER", "ADMIN_PHONE_NUMBERS",
		"CURRENCY", "FIRST_TIME_PAYMENT_AMOUNT", "FIRST_TIME_PAYMENT_MINIMUM",
		"RENEWAL_PAYMENT_AMOUNT", "RENEWAL_PAYMENT_MINIMUM", "TRANSFER_EXPIRY_HOURS",
		"RECONCILIATION_SCHEDULE", "IDEMPOTENCY_RETENTION_DAYS",
		"PRE_EXPIRY_REMINDER_LEAD_DAYS", "POST_EXPIRY_LOOKBACK_DAYS",
		"POST_EXPIRY_REMINDER_CAP", "TRANSFER_CREATE_RATE_LIMIT_PER_HOUR",
	} {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

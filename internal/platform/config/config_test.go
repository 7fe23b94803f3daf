package config

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func baseEnv() map[string]string {
	return map[string]string{
		"NUAGE_FIRESTORE_PROJECT_ID":  "nuage-test",
		"NUAGE_STRIPE_API_KEY":        "sk_test_123",
		"NUAGE_STRIPE_WEBHOOK_SECRET": "whsec_123",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(baseEnv()),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Stripe.Locale != "fr" {
		t.Fatalf("expected locale fr, got %s", cfg.Stripe.Locale)
	}
	if cfg.Shop.OrderNumberPrefix != "NU" {
		t.Fatalf("expected prefix NU, got %s", cfg.Shop.OrderNumberPrefix)
	}
	if cfg.PubSub.ProjectID != "nuage-test" {
		t.Fatalf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	want := "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	if cfg.Stripe.SuccessURL != want {
		t.Fatalf("expected derived success url %s, got %s", want, cfg.Stripe.SuccessURL)
	}
}

func TestLoadReportsMissingFields(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{}),
	)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 {
		t.Fatalf("expected missing fields to be reported")
	}
	found := false
	for _, field := range fields {
		if field == "Stripe.APIKey" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Stripe.APIKey among missing fields, got %v", fields)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["NUAGE_STRIPE_API_KEY"] = "secret://projects/nuage/secrets/stripe-key/versions/latest"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/nuage/secrets/stripe-key/versions/latest" {
			return "", fmt.Errorf("unexpected ref %s", ref)
		}
		return "sk_live_resolved", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Stripe.APIKey != "sk_live_resolved" {
		t.Fatalf("expected resolved secret, got %s", cfg.Stripe.APIKey)
	}
}

func TestLoadNormalisesSMReferences(t *testing.T) {
	env := baseEnv()
	env["NUAGE_ADMIN_HMAC_SECRET"] = "sm://projects/nuage/secrets/admin-hmac/versions/1"

	var seen string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		seen = ref
		return "shared-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if seen != "secret://projects/nuage/secrets/admin-hmac/versions/1" {
		t.Fatalf("expected normalised secret ref, got %s", seen)
	}
	if cfg.Admin.HMACSecret != "shared-secret" {
		t.Fatalf("expected resolved admin secret, got %s", cfg.Admin.HMACSecret)
	}
}

func TestLoadFailsWhenSecretResolutionFails(t *testing.T) {
	env := baseEnv()
	env["NUAGE_STRIPE_WEBHOOK_SECRET"] = "secret://projects/nuage/secrets/webhook/versions/latest"

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(),
		WithEnvFile(""),
		WithoutSystemEnv(),
		WithEnvMap(env),
		WithSecretResolver(resolver),
	)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
}

//go:build !integration

package model

import (
	"testing"
	"time"
)

func TestAPICredential_Eligible(t *testing.T) {
	now := time.Now()

	t.Run("fresh credential is eligible", func(t *testing.T) {
		c, err := NewAPICredential("id1", "u1", "sk-secret", "main")
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if !c.Eligible(now) {
			t.Fatal("want eligible")
		}
	})

	t.Run("inactive is never eligible", func(t *testing.T) {
		c, _ := NewAPICredential("id1", "u1", "sk-secret", "main")
		c.IsActive = false
		if c.Eligible(now) {
			t.Fatal("inactive credential must not be eligible")
		}
	})

	t.Run("quota flag inside cooldown blocks", func(t *testing.T) {
		c, _ := NewAPICredential("id1", "u1", "sk-secret", "main")
		c.MarkQuotaExceeded(now.Add(-QuotaCooldown + time.Minute))
		if c.Eligible(now) {
			t.Fatal("within cooldown must not be eligible")
		}
	})

	t.Run("quota flag past cooldown re-enters rotation", func(t *testing.T) {
		c, _ := NewAPICredential("id1", "u1", "sk-secret", "main")
		c.MarkQuotaExceeded(now.Add(-QuotaCooldown))
		if !c.Eligible(now) {
			t.Fatal("cooldown boundary should be eligible again")
		}
		if !c.CooldownExpired(now) {
			t.Fatal("CooldownExpired should report true at the boundary")
		}
	})
}

func TestNewAPICredential(t *testing.T) {
	if _, err := NewAPICredential("id1", "u1", "   ", "x"); err == nil {
		t.Fatal("empty secret must be rejected")
	}

	c, err := NewAPICredential("01ABCDEFGH", "u1", "sk-secret", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.DisplayName == "" {
		t.Fatal("blank display name should get a generated fallback")
	}
}

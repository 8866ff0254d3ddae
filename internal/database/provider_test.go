package database

import (
	"context"
	"testing"
	"time"
)

type stubCheckIns struct{ CheckInWriter }

func TestProvider_NotInitialized(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	if IsInitialized() {
		t.Fatal("expected backend to be uninitialized after reset")
	}
	if _, err := GetVisitorReader(context.Background()); err == nil {
		t.Error("expected error from GetVisitorReader without backend")
	}
	if _, err := GetCheckInWriter(context.Background()); err == nil {
		t.Error("expected error from GetCheckInWriter without backend")
	}
}

func TestProvider_RegisterPartial(t *testing.T) {
	t.Cleanup(ResetForTesting)

	stub := stubCheckIns{}
	RegisterPostgresBackend(nil, nil, func() CheckInWriter { return stub })

	if !IsInitialized() {
		t.Fatal("expected backend to be initialized")
	}
	if _, err := GetEnrollmentWriter(context.Background()); err == nil {
		t.Error("expected error for unregistered enrollment repository")
	}
	got, err := GetCheckInReader(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Error("expected registered check-in repository")
	}
}

func TestCheckIn_Active(t *testing.T) {
	c := CheckIn{}
	if !c.Active() {
		t.Error("expected check-in without checkout to be active")
	}
	now := time.Now()
	c.CheckedOutAt = &now
	if c.Active() {
		t.Error("expected checked-out check-in to be inactive")
	}
}

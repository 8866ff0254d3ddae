package database

import (
	"context"
	"fmt"
	"sync"
)

var (
	providerMu          sync.RWMutex
	postgresVisitors    func() VisitorWriter
	postgresEnrollments func() EnrollmentWriter
	postgresCheckIns    func() CheckInWriter
	postgresInitialized bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	visitors func() VisitorWriter,
	enrollments func() EnrollmentWriter,
	checkIns func() CheckInWriter,
) {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresVisitors = visitors
	postgresEnrollments = enrollments
	postgresCheckIns = checkIns
	postgresInitialized = true
}

// ResetForTesting clears all registered constructors.
func ResetForTesting() {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresVisitors = nil
	postgresEnrollments = nil
	postgresCheckIns = nil
	postgresInitialized = false
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return postgresInitialized
}

// GetVisitorWriter returns a VisitorWriter from the PostgreSQL backend
func GetVisitorWriter(ctx context.Context) (VisitorWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresVisitors == nil {
		return nil, fmt.Errorf("PostgreSQL visitor repository not registered")
	}
	return postgresVisitors(), nil
}

// GetVisitorReader returns a VisitorReader from the PostgreSQL backend
func GetVisitorReader(ctx context.Context) (VisitorReader, error) {
	return GetVisitorWriter(ctx)
}

// GetEnrollmentWriter returns an EnrollmentWriter from the PostgreSQL backend
func GetEnrollmentWriter(ctx context.Context) (EnrollmentWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresEnrollments == nil {
		return nil, fmt.Errorf("PostgreSQL enrollment repository not registered")
	}
	return postgresEnrollments(), nil
}

// GetEnrollmentReader returns an EnrollmentReader from the PostgreSQL backend
func GetEnrollmentReader(ctx context.Context) (EnrollmentReader, error) {
	return GetEnrollmentWriter(ctx)
}

// GetCheckInWriter returns a CheckInWriter from the PostgreSQL backend
func GetCheckInWriter(ctx context.Context) (CheckInWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresCheckIns == nil {
		return nil, fmt.Errorf("PostgreSQL check-in repository not registered")
	}
	return postgresCheckIns(), nil
}

// GetCheckInReader returns a CheckInReader from the PostgreSQL backend
func GetCheckInReader(ctx context.Context) (CheckInReader, error) {
	return GetCheckInWriter(ctx)
}

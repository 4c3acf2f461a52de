// Package testhelpers provides test utilities for stockalert
package testhelpers

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/stockalert/stockalert/internal/database"
)

// ========================================
// JSON Assertion Helpers
// ========================================

// AssertJSONKeyValue checks if a JSON object has a specific key-value pair
func AssertJSONKeyValue(t *testing.T, jsonStr string, key string, expectedValue interface{}, msg string) {
	t.Helper()

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
		t.Fatalf("%s: failed to parse JSON: %v", msg, err)
	}

	actual, exists := obj[key]
	if !exists {
		t.Errorf("%s: JSON does not contain key %q", msg, key)
		return
	}

	// JSON numbers decode as float64
	if expectedInt, ok := expectedValue.(int); ok {
		expectedValue = float64(expectedInt)
	}
	if actual != expectedValue {
		t.Errorf("%s: key %q expected %v, got %v", msg, key, expectedValue, actual)
	}
}

// ========================================
// Concurrent Testing Helpers
// ========================================

// ConcurrentTest runs a function concurrently multiple times and waits for completion.
// All goroutines are released together to maximise contention.
func ConcurrentTest(t *testing.T, goroutines int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			<-start
			fn(id)
		}(i)
	}

	close(start)
	wg.Wait()
}

// ConcurrentTestWithTimeout runs a function concurrently and fails if it doesn't complete in time
func ConcurrentTestWithTimeout(t *testing.T, timeout time.Duration, goroutines int, fn func(workerID int)) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		ConcurrentTest(t, goroutines, fn)
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		t.Fatalf("concurrent test did not complete within %v", timeout)
	}
}

// ========================================
// Time Helpers
// ========================================

// AssertTimeWithin checks if a time is within a duration of another time
func AssertTimeWithin(t *testing.T, actual, reference time.Time, tolerance time.Duration, msg string) {
	t.Helper()

	diff := actual.Sub(reference)
	if diff < 0 {
		diff = -diff
	}

	if diff > tolerance {
		t.Errorf("%s: time difference %v exceeds tolerance %v (actual: %v, reference: %v)",
			msg, diff, tolerance, actual, reference)
	}
}

// ========================================
// Store Helpers
// ========================================

// CountNotifications returns the number of stored notifications for recipientID (0 = all)
func CountNotifications(t *testing.T, db *gorm.DB, recipientID uint) int64 {
	t.Helper()
	query := db.Model(&database.Notification{})
	if recipientID != 0 {
		query = query.Where("recipient_id = ?", recipientID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("failed to count notifications: %v", err)
	}
	return count
}

// HealthCheckRuns returns every run of kind, oldest first
func HealthCheckRuns(t *testing.T, db *gorm.DB, kind database.HealthCheckKind) []database.HealthCheckRun {
	t.Helper()
	var runs []database.HealthCheckRun
	if err := db.Where("check_kind = ?", kind).Order("ran_at").Order("id").Find(&runs).Error; err != nil {
		t.Fatalf("failed to list health check runs: %v", err)
	}
	return runs
}

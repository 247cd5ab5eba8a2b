//go:build ignore

package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fenilmodi00/parcel-backend/config"
	"github.com/fenilmodi00/parcel-backend/database"
)

func main() {
	fmt.Printf("🏥 Parcel Backend Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	unified := cfg.ToUnified()

	healthScore := 0
	totalTests := 4

	client := &http.Client{Timeout: 10 * time.Second}

	// Test 1: Records API
	fmt.Print("📡 Records API: ")
	if unified.API.BaseURL == "" {
		fmt.Println("❌ FAILED (RECORDS_API_BASE_URL not configured)")
	} else if resp, err := client.Get(unified.API.BaseURL); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		resp.Body.Close()
		fmt.Printf("✅ OK (status %d)\n", resp.StatusCode)
		healthScore++
	}

	// Test 2: Assessor Portal
	fmt.Print("🌐 Assessor Portal: ")
	if unified.Scrape.BaseURL == "" {
		fmt.Println("❌ FAILED (ASSESSOR_SEARCH_BASE_URL not configured)")
	} else if resp, err := client.Get(unified.Scrape.BaseURL); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		resp.Body.Close()
		fmt.Printf("✅ OK (status %d)\n", resp.StatusCode)
		healthScore++
	}

	// Test 3: Database
	fmt.Print("🗄️  Database: ")
	db, err := database.Connect(cfg.DatabaseURL, &unified.Database)
	if err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Println("✅ OK")
		healthScore++
	}

	// Test 4: Database Data
	fmt.Print("📊 Database Data: ")
	if db == nil {
		fmt.Println("❌ FAILED (no connection)")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := database.HealthCheck(ctx, db); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			fmt.Println("✅ OK")
			healthScore++
		}
		cancel()
		db.Close()
	}

	// Overall health
	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}

	fmt.Printf("⏰ Check completed at: %s\n", time.Now().Format("15:04:05"))
}

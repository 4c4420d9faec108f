// seed posts a handful of jobs through the ingestion endpoint against a
// running server, exercising the happy path, retries, and timeouts.
// Run: go run ./cmd/seed
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

type jobSpec struct {
	key    string
	path   string
	method string
	retry  string
}

var jobs = []jobSpec{
	// Happy path
	{"seed-001", "httpbin.org/post", "POST", "3|fixed|1"},
	{"seed-002", "httpbin.org/get", "GET", "3|fixed|1"},

	// Fails — server returns 500, triggers retries
	{"seed-003", "httpbin.org/status/500", "POST", "2|fixed|1"},
	{"seed-004", "httpbin.org/status/503", "POST", "3|fibonacci|1"},

	// Fails — not found, no retry budget
	{"seed-005", "httpbin.org/status/404", "GET", ""},

	// Will time out — httpbin delays the response longer than our timeout
	{"seed-006", "httpbin.org/delay/5", "GET", "1|fixed|0"},

	// Mixed methods
	{"seed-007", "httpbin.org/put", "PUT", "3|fixed|1"},
	{"seed-008", "httpbin.org/delete", "DELETE", "3|fixed|1"},
}

func main() {
	base := os.Getenv("SEED_SERVER_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	timeoutMS := os.Getenv("SEED_TIMEOUT_MS")
	if timeoutMS == "" {
		timeoutMS = "2000"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var created, skipped int
	for _, spec := range jobs {
		q := url.Values{}
		q.Set("_id", spec.key)
		q.Set("_timeout", timeoutMS)
		if spec.retry != "" {
			q.Set("_retry", spec.retry)
		}

		target := fmt.Sprintf("%s/to/%s?%s", base, spec.path, q.Encode())

		req, err := http.NewRequest(spec.method, target, bytes.NewReader(nil))
		if err != nil {
			log.Fatalf("build request for %s: %v", spec.key, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			log.Printf("post %s: %v", spec.key, err)
			continue
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			created++
			fmt.Printf("  %-10s -> job-id=%s\n", spec.key, resp.Header.Get("Job-Id"))
		default:
			skipped++
			fmt.Printf("  %-10s -> unexpected status %d\n", spec.key, resp.StatusCode)
		}
	}

	fmt.Println()
	fmt.Printf("seed complete: %d created, %d skipped\n", created, skipped)
	fmt.Println()
	fmt.Println("check a job:  curl -s " + base + "/api/v1/jobs/<id>")
	fmt.Println("check result: curl -s " + base + "/api/v1/jobs/<id>/result")
}

// mock-capi is a local stand-in for the Graph API events endpoint. Point the
// gateway at it with CAPI_BASE_URL=http://localhost:9090 to exercise dispatch
// without a real pixel.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// POST /{pixelID}/events mirrors the Graph API shape. A pixel id
	// containing "fail" returns a Graph-style error; "slow" delays 3s.
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/events") {
			http.NotFound(w, r)
			return
		}
		pixelID := strings.Trim(strings.TrimSuffix(r.URL.Path, "/events"), "/")
		count := requestCount.Add(1)

		var req struct {
			Data         []map[string]any `json:"data"`
			PartnerAgent string           `json:"partner_agent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "invalid JSON"}})
			return
		}

		logRequest(pixelID, count, req.Data)

		if strings.Contains(pixelID, "slow") {
			time.Sleep(3 * time.Second)
		}
		if strings.Contains(pixelID, "fail") {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "Invalid OAuth access token.", "code": 190},
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"events_received": len(req.Data),
			"fbtrace_id":      fmt.Sprintf("mock-%d", count),
		})
	})

	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock CAPI server starting on :%s", port)
	log.Printf("  POST /{pixel_id}/events  -> 200 events_received")
	log.Printf("  POST /fail*/events       -> 400 Graph-style error")
	log.Printf("  GET  /stats              -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func logRequest(pixelID string, count int64, data []map[string]any) {
	name, id := "", ""
	if len(data) > 0 {
		name, _ = data[0]["event_name"].(string)
		id, _ = data[0]["event_id"].(string)
	}
	fmt.Printf("[#%d] pixel=%s events=%d event_name=%s event_id=%s\n",
		count, pixelID, len(data), name, id)
}

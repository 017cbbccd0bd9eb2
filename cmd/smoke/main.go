// Command smoke drives a full auth session against a running API:
// login, verify, change password, refresh, logout. It needs a seeded
// account with a known password (SHIFTDESK_SMOKE_EMPLOYEE_ID /
// SHIFTDESK_SMOKE_PASSWORD).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("SHIFTDESK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	employeeID := os.Getenv("SHIFTDESK_SMOKE_EMPLOYEE_ID")
	password := os.Getenv("SHIFTDESK_SMOKE_PASSWORD")
	if employeeID == "" || password == "" {
		log.Fatal("set SHIFTDESK_SMOKE_EMPLOYEE_ID and SHIFTDESK_SMOKE_PASSWORD")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	// Login.
	login := call(client, http.MethodPost, base+"/v1/auth/login", "", map[string]string{
		"employeeId": employeeID,
		"password":   password,
	})
	access, _ := login["accessToken"].(string)
	refresh, _ := login["refreshToken"].(string)
	if access == "" || refresh == "" {
		log.Fatalf("login did not return a token pair: %v", login)
	}

	// Verify.
	verify := call(client, http.MethodGet, base+"/v1/auth/verify", access, nil)
	if verify["valid"] != true {
		log.Fatalf("verify failed: %v", verify)
	}

	// Change password and change it back, proving the rotation works.
	rotated := password + "x1!"
	change := call(client, http.MethodPost, base+"/v1/auth/change-password", access, map[string]string{
		"currentPassword": password,
		"newPassword":     rotated,
		"confirmPassword": rotated,
	})
	access2, _ := change["accessToken"].(string)
	if access2 == "" {
		log.Fatalf("change-password did not return a fresh token: %v", change)
	}
	restore := call(client, http.MethodPost, base+"/v1/auth/change-password", access2, map[string]string{
		"currentPassword": rotated,
		"newPassword":     password,
		"confirmPassword": password,
	})
	access3, _ := restore["accessToken"].(string)
	refresh3, _ := restore["refreshToken"].(string)
	if access3 == "" || refresh3 == "" {
		log.Fatalf("restore change failed: %v", restore)
	}

	// Refresh.
	refreshed := call(client, http.MethodPost, base+"/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": refresh3,
	})
	if refreshed["accessToken"] == nil {
		log.Fatalf("refresh failed: %v", refreshed)
	}

	// Logout, then confirm the session is dead.
	call(client, http.MethodPost, base+"/v1/auth/logout", access3, nil)
	status, _ := rawCall(client, http.MethodGet, base+"/v1/auth/verify", access3, nil)
	if status != http.StatusUnauthorized {
		log.Fatalf("token survived logout: status=%d", status)
	}

	fmt.Printf("✅ auth smoke test passed for %s\n", employeeID)
}

func call(client *http.Client, method, url, token string, body any) map[string]any {
	status, payload := rawCall(client, method, url, token, body)
	if status < 200 || status >= 300 {
		log.Fatalf("%s %s: status=%d body=%v", method, url, status, payload)
	}
	return payload
}

func rawCall(client *http.Client, method, url, token string, body any) (int, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

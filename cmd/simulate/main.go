package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// simulate drives a running queue-service with randomized walk-in traffic:
// it issues tokens for a handful of doctors, then works each queue down with
// call-next / start / complete.

type options struct {
	baseURL  string
	doctors  int
	patients int
	date     string
}

type tokenPayload struct {
	ID          string `json:"id"`
	TokenNumber int    `json:"token_number"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Message     string `json:"message"`
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "queue-service base URL")
	flag.IntVar(&opts.doctors, "doctors", 3, "number of doctors to queue against")
	flag.IntVar(&opts.patients, "patients", 10, "patients per doctor")
	flag.StringVar(&opts.date, "date", time.Now().Format("2006-01-02"), "service date")
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())
	client := &http.Client{Timeout: 10 * time.Second}

	priorities := []string{"EMERGENCY", "HIGH", "NORMAL", "NORMAL", "NORMAL", "LOW"}
	departmentID := uuid.NewString()

	for d := 0; d < opts.doctors; d++ {
		doctorID := uuid.NewString()
		doctorName := gofakeit.Name()
		log.Printf("queueing %d patients for doctor %s (%s)", opts.patients, doctorName, doctorID)

		issued := 0
		for p := 0; p < opts.patients; p++ {
			priority := priorities[gofakeit.Number(0, len(priorities)-1)]
			token, err := issueToken(client, opts, doctorID, departmentID, priority)
			if err != nil {
				log.Printf("issue token: %v", err)
				continue
			}
			issued++
			log.Printf("  token #%d priority=%s %s", token.TokenNumber, token.Priority, token.Message)
		}

		served := 0
		for {
			token, err := callNext(client, opts, doctorID)
			if err != nil {
				break
			}
			if err := tokenAction(client, opts, token.ID, "start"); err != nil {
				log.Printf("start token #%d: %v", token.TokenNumber, err)
				continue
			}
			if err := tokenAction(client, opts, token.ID, "complete"); err != nil {
				log.Printf("complete token #%d: %v", token.TokenNumber, err)
				continue
			}
			served++
		}
		log.Printf("doctor %s: issued=%d served=%d", doctorName, issued, served)
	}
}

func issueToken(client *http.Client, opts options, doctorID, departmentID, priority string) (tokenPayload, error) {
	body, _ := json.Marshal(map[string]string{
		"patient_id":    uuid.NewString(),
		"doctor_id":     doctorID,
		"department_id": departmentID,
		"date":          opts.date,
		"priority":      priority,
	})
	return postToken(client, opts.baseURL+"/api/queue/tokens", body)
}

func callNext(client *http.Client, opts options, doctorID string) (tokenPayload, error) {
	body, _ := json.Marshal(map[string]string{
		"doctor_id": doctorID,
		"date":      opts.date,
	})
	return postToken(client, opts.baseURL+"/api/queue/actions/call-next", body)
}

func tokenAction(client *http.Client, opts options, tokenID, action string) error {
	url := fmt.Sprintf("%s/api/queue/tokens/%s/actions/%s", opts.baseURL, tokenID, action)
	_, err := postToken(client, url, []byte("{}"))
	return err
}

func postToken(client *http.Client, url string, body []byte) (tokenPayload, error) {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return tokenPayload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tokenPayload{}, fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	var token tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return tokenPayload{}, err
	}
	return token, nil
}

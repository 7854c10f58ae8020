package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// booking-sim drives the public booking flow end to end against a running
// booking-service: query availability for a date, take the first open slot,
// book it, print the reference number.
func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8081"), "booking-service base url")
		branchID = flag.String("branch-id", getenv("BRANCH_ID", ""), "branch to book at")
		service  = flag.String("service-id", getenv("SERVICE_ID", ""), "service to book")
		dentist  = flag.String("dentist-id", getenv("DENTIST_ID", ""), "dentist preference (empty = any)")
		date     = flag.String("date", time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02"), "target date (YYYY-MM-DD)")
		name     = flag.String("patient-name", getenv("PATIENT_NAME", "Sim Patient"), "patient name")
		phone    = flag.String("patient-phone", getenv("PATIENT_PHONE", ""), "patient phone")
	)
	flag.Parse()

	if strings.TrimSpace(*branchID) == "" {
		fatal("BRANCH_ID is required")
	}
	if strings.TrimSpace(*service) == "" {
		fatal("SERVICE_ID is required")
	}
	if strings.TrimSpace(*phone) == "" {
		*phone = fmt.Sprintf("+63-917-%07d", time.Now().UnixNano()%10000000)
	}

	base := strings.TrimRight(*baseURL, "/")

	availURL := fmt.Sprintf("%s/api/v1/public/availability?branchId=%s&date=%s", base, *branchID, *date)
	if *dentist != "" {
		availURL += "&dentistId=" + *dentist
	}
	resp, err := http.Get(availURL)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatal(fmt.Sprintf("availability returned %d", resp.StatusCode))
	}

	var avail struct {
		Slots []struct {
			Time      string `json:"time"`
			Available bool   `json:"available"`
			DentistID string `json:"dentistId"`
		} `json:"slots"`
		IsClosure     bool   `json:"isClosure"`
		ClosureReason string `json:"closureReason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&avail); err != nil {
		fatal(err.Error())
	}
	if avail.IsClosure {
		fatal(fmt.Sprintf("branch is closed on %s: %s", *date, avail.ClosureReason))
	}

	var slotTime, slotDentist string
	for _, s := range avail.Slots {
		if s.Available {
			slotTime = s.Time
			slotDentist = s.DentistID
			break
		}
	}
	if slotTime == "" {
		fatal(fmt.Sprintf("no open slots on %s", *date))
	}
	fmt.Printf("booking slot %s (dentist %s)\n", slotTime, slotDentist)

	body, err := json.Marshal(map[string]any{
		"branchId":     *branchID,
		"serviceId":    *service,
		"dentistId":    orNil(*dentist),
		"scheduledAt":  slotTime,
		"patientName":  *name,
		"patientPhone": *phone,
		"isFirstVisit": true,
	})
	if err != nil {
		fatal(err.Error())
	}

	bookResp, err := http.Post(base+"/api/v1/public/book", "application/json", bytes.NewReader(body))
	if err != nil {
		fatal(err.Error())
	}
	defer bookResp.Body.Close()

	var booked struct {
		AppointmentID   string `json:"appointmentId"`
		ReferenceNumber string `json:"referenceNumber"`
		ConfirmedAt     string `json:"confirmedAt"`
		Error           string `json:"error"`
	}
	if err := json.NewDecoder(bookResp.Body).Decode(&booked); err != nil {
		fatal(err.Error())
	}
	if bookResp.StatusCode != http.StatusCreated {
		fatal(fmt.Sprintf("booking returned %d: %s", bookResp.StatusCode, booked.Error))
	}
	fmt.Printf("status=%d appointment=%s reference=%s confirmedAt=%s\n",
		bookResp.StatusCode, booked.AppointmentID, booked.ReferenceNumber, booked.ConfirmedAt)
}

func orNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
